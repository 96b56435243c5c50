package normalize

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s+`)

// Text lowercases, collapses whitespace, and trims the input so descriptions
// and queries compare case-insensitively.
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return multiSpace.ReplaceAllString(strings.ToLower(s), " ")
}

// Tokens splits folded text on spaces and common punctuation.
func Tokens(s string) []string {
	return strings.FieldsFunc(Text(s), func(r rune) bool {
		switch r {
		case ' ', ',', ';', '/', '(', ')', '-':
			return true
		}
		return false
	})
}
