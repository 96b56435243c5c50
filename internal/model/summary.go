package model

import "time"

// LoadSummary captures metrics from loading one reference year into Postgres.
type LoadSummary struct {
	Year              int
	DatasetID         string
	FilesSHA256       string
	CodesLoaded       int64
	LocalitiesLoaded  int64
	ZipsLoaded        int64
	AlreadyLoaded     bool
	DurationPreflight time.Duration
	DurationStage     time.Duration
	DurationFinalize  time.Duration
	DurationTotal     time.Duration
}
