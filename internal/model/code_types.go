package model

// CodeSystem names the code set a procedure code belongs to.
type CodeSystem struct {
	Name  string // e.g. "CPT"
	Label string
}

// AllCodeSystems lists the code systems priced on the fee schedule, in the
// order dataset reports list them.
var AllCodeSystems = []CodeSystem{
	{Name: "CPT", Label: "CPT Category I"},
	{Name: "CPT-II", Label: "CPT Category II (performance measurement)"},
	{Name: "CPT-III", Label: "CPT Category III (emerging technology)"},
	{Name: "HCPCS", Label: "HCPCS Level II"},
}

// CodeSystemOf classifies a normalized 5-character code by shape:
// NNNNN is CPT, NNNNF is CPT-II, NNNNT is CPT-III, ANNNN is HCPCS Level II.
// Returns "" for anything else.
func CodeSystemOf(code string) string {
	if len(code) != 5 {
		return ""
	}
	if isDigits(code[1:4]) {
		first, last := code[0], code[4]
		switch {
		case isDigit(first) && isDigit(last):
			return "CPT"
		case isDigit(first) && last == 'F':
			return "CPT-II"
		case isDigit(first) && last == 'T':
			return "CPT-III"
		case first >= 'A' && first <= 'Z' && isDigit(last):
			return "HCPCS"
		}
	}
	return ""
}

// CountByCodeSystem tallies code rows per code system name. Rows whose code
// matches no system are counted under "".
func CountByCodeSystem(codes []CodeRecord) map[string]int {
	counts := make(map[string]int)
	for i := range codes {
		counts[CodeSystemOf(codes[i].Code)]++
	}
	return counts
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
