package model

// CodeParquetRow mirrors the Parquet layout accepted for a year's code table
// (codes.parquet). RVUs are doubles in published files and are converted to
// decimals on load. PE columns are optional; a null means NA.
type CodeParquetRow struct {
	Code             string   `parquet:"code"`
	Modifier         *string  `parquet:"modifier,optional"`
	Description      string   `parquet:"description"`
	StatusCode       *string  `parquet:"status_code,optional"`
	WorkRVU          float64  `parquet:"work_rvu"`
	NonFacilityPERVU *float64 `parquet:"nonfacility_pe_rvu,optional"`
	FacilityPERVU    *float64 `parquet:"facility_pe_rvu,optional"`
	MPRVU            float64  `parquet:"mp_rvu"`
	GlobalPeriod     *string  `parquet:"global_period,optional"`
}

// AnalysisParquetRow is one exported analysis line. Money is int64 cents and
// percentages are int32 basis points so the file is exact without a decimal
// logical type.
type AnalysisParquetRow struct {
	AnalysisID         string  `parquet:"analysis_id"`
	Line               int32   `parquet:"line"`
	Code               string  `parquet:"code"`
	Modifier           *string `parquet:"modifier,optional"`
	Description        *string `parquet:"description,optional"`
	ContractedCents    *int64  `parquet:"contracted_rate_cents,optional"`
	BenchmarkCents     *int64  `parquet:"benchmark_rate_cents,optional"`
	VarianceCents      *int64  `parquet:"variance_cents,optional"`
	VariancePctBPS     *int32  `parquet:"variance_pct_bps,optional"`
	Volume             *int64  `parquet:"volume,optional"`
	RevenueImpactCents *int64  `parquet:"revenue_impact_cents,optional"`
	Classification     *string `parquet:"classification,optional"`
	RedFlag            bool    `parquet:"red_flag"`
	Error              *string `parquet:"error,optional"`
}
