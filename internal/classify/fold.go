package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips diacritics so that "DÉCHETS" and "DECHETS" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// key normalizes a cell for vocabulary comparisons.
func key(s string) string {
	return strings.ToLower(Fold(strings.TrimSpace(s)))
}

// TitleKey reduces a text title for duplicate detection: folded, lower case,
// inner whitespace collapsed.
func TitleKey(title string) string {
	return strings.Join(strings.Fields(key(title)), " ")
}
