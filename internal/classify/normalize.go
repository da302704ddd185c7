package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticsStripper decomposes to NFD, drops combining marks, recomposes.
// "señaló" → "senalo". ñ folds to n on purpose: user typos rarely preserve it.
var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize case-folds, strips diacritics, and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(diacriticsStripper, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits normalized text into word tokens, dropping punctuation.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
