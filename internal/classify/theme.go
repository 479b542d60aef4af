package classify

import "strings"

// Canonical theme buckets.
const (
	ThemeSante          = "SÉCURITÉ / SANTÉ"
	ThemeEnergie        = "ÉNERGIE"
	ThemeRSE            = "RSE & SUBSTANCES"
	ThemeSols           = "SOLS / INFRASTRUCTURES"
	ThemeTransport      = "TRANSPORT / ADR"
	ThemeEau            = "EAU"
	ThemeAir            = "AIR"
	ThemeDechets        = "DÉCHETS / REP"
	ThemeRisques        = "RISQUES & SÉCURITÉ"
	ThemeICPE           = "ICPE / IOTA"
	ThemeBiodiversite   = "BIODIVERSITÉ / PATRIMOINE"
	ThemeAdministration = "ADMINISTRATION / GOUVERNANCE"
	// ThemeUnclassified labels rows with a blank theme when cleaning is off.
	ThemeUnclassified = "Non classé"
)

type themeRule struct {
	bucket   string
	keywords []string
}

// themeRules are evaluated in order; the first bucket with a keyword found wins.
var themeRules = []themeRule{
	{ThemeSante, []string{"SANTE", "TRAVAIL", "MEDICAL", "PERSONNEL", "HYGIENE", "FORMATION", "SECURITE", "EPI"}},
	{ThemeEnergie, []string{"ENERGIE", "CARBONE", "CHAUFFAGE", "ELECTRI", "CLIM", "GAZ", "RELEVE"}},
	{ThemeRSE, []string{"PRODUIT", "LABEL", "ECO", "AFFICHAGE", "RSE", "ESG", "MANAGEMENT", "REACH", "ROHS", "SUBSTANCE"}},
	{ThemeSols, []string{"BATIMENT", "IMMOBILIER", "URBA", "DEMOLITION", "SOL", "INFRA", "FOSSES", "CONSTRUCTION"}},
	{ThemeTransport, []string{"VEHICULE", "MOBILITE", "ADR", "TMD", "TRANSPORT", "FLOTTE"}},
	{ThemeEau, []string{"EAU", "EFFLUENT", "FORAGE", "PAYSAGE"}},
	{ThemeAir, []string{"AIR", "GES", "POLLU", "MACF", "EMISSION"}},
	{ThemeDechets, []string{"DECHET", "REP", "CIRCULAIRE", "GACHIS", "EMBALLAGE", "PLASTIQUE"}},
	{ThemeRisques, []string{"BRUIT", "SONOR", "VIBRATION", "RISQUE", "ESP", "CHIMIQ", "SISMIQUE", "INCENDIE", "FOUDROIEMENT"}},
	{ThemeICPE, []string{"ICPE", "IOTA", "INSTALLATION", "AUTORISATION", "DECLARATION", "ENREGISTREMENT"}},
	{ThemeBiodiversite, []string{"FORET", "BOIS", "BIODIV", "NATURE", "ESPECE"}},
}

// genericThemes send an otherwise unmatched theme to the governance bucket.
var genericThemes = []string{"DIVER", "AUTRE", "DROIT", "ADMIN", "TEXTE", "GOUV", "GENERAL", "PROCEDURE"}

// CleanTheme maps a free-form sheet theme onto a canonical bucket, looking at
// the theme and the title of the text. Matching is accent-insensitive.
// Themes that match nothing keep their upper-cased spelling.
func CleanTheme(theme, title string) string {
	t := strings.ToUpper(strings.TrimSpace(theme))
	folded := Fold(t)
	context := folded
	if strings.TrimSpace(title) != "" {
		context = folded + " " + Fold(strings.ToUpper(title))
	}

	for _, rule := range themeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(context, kw) {
				return rule.bucket
			}
		}
	}

	if t == "" {
		return ThemeAdministration
	}
	for _, kw := range genericThemes {
		if strings.Contains(folded, kw) {
			return ThemeAdministration
		}
	}
	return t
}

// RawTheme is the label used when themes are counted as written in the sheet.
func RawTheme(theme string) string {
	t := strings.TrimSpace(theme)
	if t == "" {
		return ThemeUnclassified
	}
	return t
}
