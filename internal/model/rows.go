package model

// Column orders for COPY into the ref schema. CopyValues methods return
// values in the same order; decimals are converted to pg numerics by the
// db.ChannelSource.

// CodeRVUColumns returns the ordered column names for ref.code_rvus.
func CodeRVUColumns() []string {
	return []string{
		"year",
		"code",
		"modifier",
		"description",
		"status_code",
		"work_rvu",
		"nonfacility_pe_rvu",
		"facility_pe_rvu",
		"mp_rvu",
		"nonfacility_pe_na",
		"facility_pe_na",
		"global_period",
	}
}

// CopyValues returns the record in CodeRVUColumns order.
func (r *CodeRecord) CopyValues() []any {
	return []any{
		int32(r.Year),
		r.Code,
		r.Modifier,
		r.Description,
		r.StatusCode,
		r.WorkRVU,
		r.NonFacilityPERVU,
		r.FacilityPERVU,
		r.MalpracticeRVU,
		r.NonFacilityPENA,
		r.FacilityPENA,
		r.GlobalPeriod,
	}
}

// LocalityColumns returns the ordered column names for ref.localities.
func LocalityColumns() []string {
	return []string{
		"year",
		"locality_code",
		"name",
		"state",
		"contractor",
		"work_gpci",
		"pe_gpci",
		"mp_gpci",
		"state_default",
	}
}

// CopyValues returns the record in LocalityColumns order.
func (r *LocalityRecord) CopyValues() []any {
	return []any{
		int32(r.Year),
		r.Code,
		r.Name,
		r.State,
		r.Contractor,
		r.WorkGPCI,
		r.PEGPCI,
		r.MPGPCI,
		r.StateDefault,
	}
}

// ZipLocalityColumns returns the ordered column names for ref.zip_localities.
// The year is not part of ZipLocality so the loader prepends it.
func ZipLocalityColumns() []string {
	return []string{"year", "zip5", "state", "locality_code"}
}

// YearZip pairs a ZipLocality with its year for COPY.
type YearZip struct {
	Year int
	ZipLocality
}

// CopyValues returns the row in ZipLocalityColumns order.
func (r *YearZip) CopyValues() []any {
	return []any{int32(r.Year), r.Zip, r.State, r.LocalityCode}
}
