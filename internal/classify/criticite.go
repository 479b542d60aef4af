package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Criticité levels.
const (
	Haute   = "Haute"
	Moyenne = "Moyenne"
	Basse   = "Basse"
)

// NormalizeCriticite capitalizes a sheet value; blank or unknown levels read as Basse.
func NormalizeCriticite(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Basse
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	switch s {
	case Haute, Moyenne, Basse:
		return s
	default:
		return Basse
	}
}

var (
	hauteKeywords = []string{
		"arrêté préfectoral", "vle", "v.l.e", "valeur limite", "rejet", "seuil",
		"icpe 2561", "icpe 2564", "icpe 2565", "icpe 2560", "sanction", "pénal",
		"reach", "rohs", "interdiction", "amende", "mise en demeure",
	}
	moyenneKeywords = []string{
		"rep ", "loi agec", "responsabilité élargie", "registre", "bsd", "trackdechets",
		"rndts", "déclaration", "tri ", "audit périodique", "fluide frigorigène",
		"contrôle technique", "périodicité", "formation", "affichage",
	}
)

// ReclassifyCriticite derives a level from the wording of a text: any Haute
// keyword wins over Moyenne keywords, and Basse is the default.
func ReclassifyCriticite(title, comments string) string {
	text := strings.ToLower(title + " " + comments)
	for _, kw := range hauteKeywords {
		if strings.Contains(text, kw) {
			return Haute
		}
	}
	for _, kw := range moyenneKeywords {
		if strings.Contains(text, kw) {
			return Moyenne
		}
	}
	return Basse
}
