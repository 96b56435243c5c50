package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amount parses a currency string such as "$1,234.50" or "75" into an exact
// decimal. Parentheses denote a negative amount.
func Amount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-$") {
		s = "-" + s[2:]
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not numeric", raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// Count parses a non-negative whole number such as "1,200" or "12.0".
func Count(s string) (int64, error) {
	d, err := Amount(s)
	if err != nil {
		return 0, fmt.Errorf("count %q is not numeric", s)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("count %q is not a whole number", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("count %q is negative", s)
	}
	return d.IntPart(), nil
}

// DollarsToCents converts a nullable dollar amount to nullable int64 cents,
// rounding half away from zero.
func DollarsToCents(v *decimal.Decimal) *int64 {
	if v == nil {
		return nil
	}
	c := v.Mul(hundred).Round(0).IntPart()
	return &c
}

// PercentToBasisPoints converts a nullable percentage to nullable int32 basis points.
// e.g. 12.34% -> 1234 bps.
func PercentToBasisPoints(v *decimal.Decimal) *int32 {
	if v == nil {
		return nil
	}
	bp := int32(v.Mul(hundred).Round(0).IntPart())
	return &bp
}
