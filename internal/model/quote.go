package model

import "github.com/shopspring/decimal"

// ResolutionMethod records how a locality was chosen for a request.
type ResolutionMethod string

const (
	ResolvedExact           ResolutionMethod = "exact"
	ResolvedStateDefault    ResolutionMethod = "state_default"
	ResolvedNationalDefault ResolutionMethod = "national_default"
	ResolvedExplicit        ResolutionMethod = "explicit"
)

// LocalityResolution is a resolved locality plus how it was found.
type LocalityResolution struct {
	Locality LocalityRecord   `json:"locality"`
	Zip      string           `json:"zip,omitempty"`
	State    string           `json:"state,omitempty"`
	Method   ResolutionMethod `json:"method"`
	Fallback bool             `json:"fallback"`
}

// PriceComponents is the per-component breakdown behind a quote. Adjusted
// values are RVU x GPCI, unrounded.
type PriceComponents struct {
	WorkRVU         decimal.Decimal `json:"work_rvu"`
	PERVU           decimal.Decimal `json:"pe_rvu"`
	MPRVU           decimal.Decimal `json:"mp_rvu"`
	PENotApplicable bool            `json:"pe_not_applicable,omitempty"`

	WorkGPCI decimal.Decimal `json:"work_gpci"`
	PEGPCI   decimal.Decimal `json:"pe_gpci"`
	MPGPCI   decimal.Decimal `json:"mp_gpci"`

	AdjustedWork decimal.Decimal `json:"adjusted_work"`
	AdjustedPE   decimal.Decimal `json:"adjusted_pe"`
	AdjustedMP   decimal.Decimal `json:"adjusted_mp"`
	AdjustedRVU  decimal.Decimal `json:"adjusted_rvu"`
	NationalRVU  decimal.Decimal `json:"national_rvu"`
}

// PriceQuote is the benchmark price for one (code, locality, year, setting).
// It is a pure function of reference data and is never persisted.
type PriceQuote struct {
	Code            string  `json:"code"`
	Modifier        string  `json:"modifier,omitempty"`
	ModifierApplied bool    `json:"modifier_applied"`
	Description     string  `json:"description"`
	CodeSystem      string  `json:"code_system,omitempty"`
	StatusCode      string  `json:"status_code"`
	GlobalPeriod    string  `json:"global_period"`
	Year            int     `json:"year"`
	Setting         Setting `json:"setting"`

	Locality         LocalityRecord     `json:"locality"`
	Resolution       LocalityResolution `json:"locality_resolution"`
	ConversionFactor decimal.Decimal    `json:"conversion_factor"`

	Price         decimal.Decimal `json:"price"`
	NationalPrice decimal.Decimal `json:"national_price"`
	Components    PriceComponents `json:"components"`
}
