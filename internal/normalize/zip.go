package normalize

import (
	"fmt"
	"strings"
)

// ZIP reduces a US postal code to its 5-digit form. ZIP+4 in either
// "NNNNN-NNNN" or "NNNNNNNNN" form is accepted.
func ZIP(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 10 && s[5] == '-' && allDigits(s[:5]) && allDigits(s[6:]):
		return s[:5], nil
	case len(s) == 9 && allDigits(s):
		return s[:5], nil
	case len(s) == 5 && allDigits(s):
		return s, nil
	}
	return "", fmt.Errorf("zip %q is not a 5-digit postal code", s)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
