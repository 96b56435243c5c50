package parquetread

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// requiredColumns must be present in every code table file.
var requiredColumns = []string{"code", "description", "work_rvu", "mp_rvu"}

// peColumns: at least one practice-expense column is needed to price anything.
var peColumns = []string{"nonfacility_pe_rvu", "facility_pe_rvu"}

// ValidateSchema checks that the Parquet schema carries the RVU columns the
// calculator needs.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	for _, col := range requiredColumns {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}

	for _, col := range peColumns {
		if columns[col] {
			return nil
		}
	}
	return fmt.Errorf("no practice-expense columns found; need at least one of: %s",
		strings.Join(peColumns, ", "))
}
