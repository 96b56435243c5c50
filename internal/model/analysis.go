package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Classification of a matched line against its benchmark.
type Classification string

const (
	ClassBelow Classification = "below"
	ClassAbove Classification = "above"
	ClassEqual Classification = "equal"
)

// DefaultRedFlagThreshold is the variance percentage at or below which a
// matched line is flagged.
var DefaultRedFlagThreshold = decimal.NewFromInt(-10)

// LineError is a per-line failure carried inside results.
type LineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *LineError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ContractLine is one contracted rate to evaluate. Err is set when the file
// or JSON decoder could not read the line; a nil ContractedRate without Err
// is rejected by the analyzer.
type ContractLine struct {
	SourceRow      int              `json:"source_row,omitempty"`
	Code           string           `json:"code"`
	Modifier       string           `json:"modifier,omitempty"`
	ContractedRate *decimal.Decimal `json:"contracted_rate"`
	Volume         *int64           `json:"volume,omitempty"`
	Err            *LineError       `json:"-"`
}

// AnalysisRequest is a batch of contract lines priced against one locality.
// Exactly one of Zip or LocalityCode is expected.
type AnalysisRequest struct {
	Lines        []ContractLine `json:"lines"`
	Zip          string         `json:"zip,omitempty"`
	LocalityCode string         `json:"locality_code,omitempty"`
	Year         int            `json:"year"`
	Setting      Setting        `json:"setting"`
}

// AnalysisLineItem is the evaluated form of one ContractLine. Benchmark
// fields are nil when the line could not be priced; RevenueImpact is set iff
// Volume is.
type AnalysisLineItem struct {
	Line        int    `json:"line"`
	SourceRow   int    `json:"source_row,omitempty"`
	Code        string `json:"code"`
	Modifier    string `json:"modifier,omitempty"`
	Description string `json:"description,omitempty"`

	ContractedRate *decimal.Decimal `json:"contracted_rate"`
	BenchmarkRate  *decimal.Decimal `json:"benchmark_rate"`
	NationalRate   *decimal.Decimal `json:"national_rate"`
	Variance       *decimal.Decimal `json:"variance"`
	VariancePct    *decimal.Decimal `json:"variance_pct"`
	Volume         *int64           `json:"volume,omitempty"`
	RevenueImpact  *decimal.Decimal `json:"revenue_impact,omitempty"`

	Matched         bool           `json:"matched"`
	Classification  Classification `json:"classification,omitempty"`
	IsBelowMedicare bool           `json:"is_below_medicare"`
	RedFlag         bool           `json:"red_flag"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// AnalysisResult is the ordered line items plus aggregates.
// Invariants: TotalCodes == len(LineItems), CodesMatched+CodesUnmatched == TotalCodes.
type AnalysisResult struct {
	AnalysisID  string    `json:"analysis_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Year             int                `json:"year"`
	Setting          Setting            `json:"setting"`
	Resolution       LocalityResolution `json:"locality_resolution"`
	ConversionFactor decimal.Decimal    `json:"conversion_factor"`
	RedFlagThreshold decimal.Decimal    `json:"red_flag_threshold"`

	LineItems []AnalysisLineItem `json:"line_items"`

	TotalCodes     int `json:"total_codes"`
	CodesMatched   int `json:"codes_matched"`
	CodesUnmatched int `json:"codes_unmatched"`
	CountBelow     int `json:"count_below"`
	CountAbove     int `json:"count_above"`
	CountEqual     int `json:"count_equal"`

	TotalVariance      decimal.Decimal `json:"total_variance"`
	TotalRevenueImpact decimal.Decimal `json:"total_revenue_impact"`
	TotalContracted    decimal.Decimal `json:"total_contracted"`
	TotalBenchmark     decimal.Decimal `json:"total_benchmark"`

	RedFlags []AnalysisLineItem `json:"red_flags"`
}
