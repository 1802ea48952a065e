package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize turns a free-text merchant name into its canonical lookup key:
// diacritics folded, lower-cased, everything but letters, numbers and
// whitespace dropped, whitespace runs collapsed to one space, trimmed.
//
// "Joe's Café" and "joes cafe" both normalize to "joes cafe".
// An empty result means "no merchant".
func Normalize(raw string) string {
	// transform.Chain keeps state, so it is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}
