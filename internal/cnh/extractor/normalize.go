package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold removes diacritics: "FILIAÇÃO" becomes "FILIACAO".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText trims, collapses inner whitespace and uppercases.
// Diacritics are kept so names survive intact.
func NormalizeText(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// LabelForm is the comparison key used for label matching: normalized,
// diacritic-free and without trailing punctuation.
func LabelForm(s string) string {
	return strings.TrimRight(Fold(NormalizeText(s)), ":.;,- ")
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
