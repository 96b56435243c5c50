package normalize

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// Code trims whitespace, uppercases, and strips non-alphanumeric characters.
// "  99213 " and "992-13" both become "99213".
func Code(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return nonAlphanumeric.ReplaceAllString(strings.ToUpper(s), "")
}

// CodeAndModifier splits a combined "99213-25" or "99213 25" entry into code
// and modifier. An explicit modifier argument wins over an embedded one.
func CodeAndModifier(code, modifier string) (string, string) {
	code = strings.TrimSpace(code)
	embedded := ""
	if i := strings.IndexAny(code, "- "); i > 0 {
		code, embedded = code[:i], code[i+1:]
	}
	if mod := Modifier(modifier); mod != "" {
		return Code(code), mod
	}
	return Code(code), Modifier(embedded)
}

// Modifier normalizes a two-character billing modifier.
func Modifier(s string) string {
	return Code(s)
}
