package model

import "github.com/shopspring/decimal"

// Setting selects which practice-expense RVU applies.
type Setting string

const (
	SettingFacility    Setting = "facility"
	SettingNonFacility Setting = "non_facility"
)

// ParseSetting accepts the canonical names plus the common spellings found in
// uploads ("nonfacility", "non-facility", "office").
func ParseSetting(s string) (Setting, error) {
	switch s {
	case "facility", "FACILITY", "Facility", "fac":
		return SettingFacility, nil
	case "non_facility", "nonfacility", "non-facility", "NON_FACILITY", "office", "":
		return SettingNonFacility, nil
	}
	return "", Errorf(KindInvalidInput, "unknown setting %q (want facility or non_facility)", s)
}

// CodeRecord is one row of the physician fee schedule RVU table for a year.
// Identity is (Code, Modifier, Year); Modifier is "" for the global row.
type CodeRecord struct {
	Code        string `json:"code"`
	Modifier    string `json:"modifier,omitempty"`
	Year        int    `json:"year"`
	Description string `json:"description"`
	StatusCode  string `json:"status_code"`

	WorkRVU          decimal.Decimal `json:"work_rvu"`
	NonFacilityPERVU decimal.Decimal `json:"nonfacility_pe_rvu"`
	FacilityPERVU    decimal.Decimal `json:"facility_pe_rvu"`
	MalpracticeRVU   decimal.Decimal `json:"mp_rvu"`
	NonFacilityPENA  bool            `json:"nonfacility_pe_na,omitempty"`
	FacilityPENA     bool            `json:"facility_pe_na,omitempty"`
	GlobalPeriod     string          `json:"global_period"`
}

// Key returns the lookup key for the record within its year.
func (r *CodeRecord) Key() string {
	return CodeKey(r.Code, r.Modifier)
}

// PERVU returns the practice-expense RVU for the setting and whether the
// source table marked it as not applicable.
func (r *CodeRecord) PERVU(s Setting) (decimal.Decimal, bool) {
	if s == SettingFacility {
		return r.FacilityPERVU, r.FacilityPENA
	}
	return r.NonFacilityPERVU, r.NonFacilityPENA
}

// CodeKey joins code and modifier into a map key.
func CodeKey(code, modifier string) string {
	if modifier == "" {
		return code
	}
	return code + "-" + modifier
}

// LocalityRecord is a fee schedule payment area with its GPCI triple.
type LocalityRecord struct {
	Code         string          `json:"locality_code"`
	Year         int             `json:"year"`
	Name         string          `json:"name"`
	State        string          `json:"state"`
	Contractor   string          `json:"contractor"`
	WorkGPCI     decimal.Decimal `json:"work_gpci"`
	PEGPCI       decimal.Decimal `json:"pe_gpci"`
	MPGPCI       decimal.Decimal `json:"mp_gpci"`
	StateDefault bool            `json:"state_default,omitempty"`
}

// ZipLocality maps a 5-digit ZIP to its locality for a year.
type ZipLocality struct {
	Zip          string
	State        string
	LocalityCode string
}

// ConversionFactor is the dollars-per-RVU multiplier for a year.
type ConversionFactor struct {
	Year   int
	Factor decimal.Decimal
}
