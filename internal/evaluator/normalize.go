package evaluator

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeText prepares a span's text for partial/overlap comparison:
// Unicode NFC normalisation (so visually identical CJK sequences compare
// equal regardless of composed/decomposed form), trimming, whitespace
// collapsing, then case folding.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	s = collapseWhitespace(s)
	return strings.ToLower(s)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
