package triggers

import (
	"strings"
	"unicode"
)

// obfuscation characters dropped before the letter/digit filter, so that
// separator-masked terms ("re_fund", "s*a*l*e") collapse back together.
var obfuscationReplacer = strings.NewReplacer("*", "", "_", "")

// Normalize maps segment text and lexicon terms into one comparable form:
// lower-case, obfuscation characters removed, anything that is not a letter or
// digit turned into a space, whitespace runs collapsed. Idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = obfuscationReplacer.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
