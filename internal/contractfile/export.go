package contractfile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	goparquet "github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Analysis"

// ExportColumns is the canonical result layout. It is also a valid upload
// header: code, modifier, contracted_rate and volume are read back by Parse.
var ExportColumns = []string{
	"code",
	"modifier",
	"description",
	"contracted_rate",
	"benchmark_rate",
	"variance",
	"variance_pct",
	"volume",
	"revenue_impact",
	"classification",
	"red_flag",
	"error",
}

// ContentType returns the MIME type for f.
func ContentType(f Format) string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	}
	return "application/json; charset=utf-8"
}

// Write encodes result in format f.
func Write(w io.Writer, result *model.AnalysisResult, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatXLSX:
		return WriteXLSX(w, result)
	case FormatParquet:
		return WriteParquet(w, result)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return model.Errorf(model.KindInvalidInput, "unknown format %q", f)
}

// WriteCSV writes one row per line item in ExportColumns order.
func WriteCSV(w io.Writer, result *model.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range result.LineItems {
		if err := cw.Write(textRow(&result.LineItems[i])); err != nil {
			return fmt.Errorf("write line %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same rows as WriteCSV to a single worksheet. Money
// and percentages are numeric cells.
func WriteXLSX(w io.Writer, result *model.AnalysisResult) error {
	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := wb.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range result.LineItems {
		it := &result.LineItems[i]
		row := []any{
			it.Code,
			it.Modifier,
			it.Description,
			exactNumber(it.ContractedRate),
			number(it.BenchmarkRate),
			number(it.Variance),
			number(it.VariancePct),
			nil,
			number(it.RevenueImpact),
			string(it.Classification),
			it.RedFlag,
			it.Error,
		}
		if it.Volume != nil {
			row[7] = *it.Volume
		}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(SheetName, cellName, &row); err != nil {
			return fmt.Errorf("write line %d: %w", i+1, err)
		}
	}

	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteParquet writes line items as model.AnalysisParquetRow.
func WriteParquet(w io.Writer, result *model.AnalysisResult) error {
	rows := make([]model.AnalysisParquetRow, len(result.LineItems))
	for i := range result.LineItems {
		it := &result.LineItems[i]
		rows[i] = model.AnalysisParquetRow{
			AnalysisID:         result.AnalysisID,
			Line:               int32(it.Line),
			Code:               it.Code,
			Modifier:           optional(it.Modifier),
			Description:        optional(it.Description),
			ContractedCents:    normalize.DollarsToCents(it.ContractedRate),
			BenchmarkCents:     normalize.DollarsToCents(it.BenchmarkRate),
			VarianceCents:      normalize.DollarsToCents(it.Variance),
			VariancePctBPS:     normalize.PercentToBasisPoints(it.VariancePct),
			Volume:             it.Volume,
			RevenueImpactCents: normalize.DollarsToCents(it.RevenueImpact),
			Classification:     optional(string(it.Classification)),
			RedFlag:            it.RedFlag,
			Error:              optional(it.Error),
		}
	}

	writer := goparquet.NewGenericWriter[model.AnalysisParquetRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func textRow(it *model.AnalysisLineItem) []string {
	vol := ""
	if it.Volume != nil {
		vol = strconv.FormatInt(*it.Volume, 10)
	}
	return []string{
		it.Code,
		it.Modifier,
		it.Description,
		exact(it.ContractedRate),
		money(it.BenchmarkRate),
		money(it.Variance),
		money(it.VariancePct),
		vol,
		money(it.RevenueImpact),
		string(it.Classification),
		strconv.FormatBool(it.RedFlag),
		it.Error,
	}
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

// exact formats an input value at full precision so re-ingesting the export
// prices the same contract.
func exact(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func exactNumber(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.InexactFloat64()
}

func number(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.Round(2).InexactFloat64()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
