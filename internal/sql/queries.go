package sql

import (
	"embed"
)

// Migrations holds the schema DDL applied by db.ApplyMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/register_dataset.sql
var RegisterDataset string

//go:embed queries/find_active_dataset.sql
var FindActiveDataset string

//go:embed queries/delete_year.sql
var DeleteYear string

//go:embed queries/upsert_conversion_factor.sql
var UpsertConversionFactor string

//go:embed queries/supersede_datasets.sql
var SupersedeDatasets string

//go:embed queries/activate_dataset.sql
var ActivateDataset string

//go:embed queries/fail_dataset.sql
var FailDataset string

//go:embed queries/analyze_reference.sql
var AnalyzeReference string

//go:embed queries/active_years.sql
var ActiveYears string

//go:embed queries/select_conversion_factor.sql
var SelectConversionFactor string

//go:embed queries/select_codes.sql
var SelectCodes string

//go:embed queries/select_localities.sql
var SelectLocalities string

//go:embed queries/select_zip_localities.sql
var SelectZipLocalities string
