// Package contractfile converts uploaded contract rate sheets into analysis
// lines and writes analysis results back out in the same tabular shape.
package contractfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
)

// Format is a tabular file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatParquet, FormatJSON:
		return f, nil
	case "xls", "excel":
		return FormatXLSX, nil
	}
	return "", model.Errorf(model.KindInvalidInput, "unknown format %q (want csv, xlsx, parquet or json)", s)
}

// FormatFromName infers the format from a file extension.
func FormatFromName(name string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "", model.Errorf(model.KindInvalidInput, "cannot infer format of %q", name)
	}
	return ParseFormat(ext)
}

// Header aliases, lowercase with spaces folded to underscores.
var (
	codeHeaders     = []string{"code", "cpt", "cpt_code", "hcpcs", "hcpcs_code", "procedure_code", "billing_code"}
	modifierHeaders = []string{"modifier", "mod", "modifier_1"}
	rateHeaders     = []string{"rate", "contracted_rate", "contract_rate", "allowed", "allowed_amount", "negotiated_rate"}
	volumeHeaders   = []string{"volume", "units", "qty", "quantity", "count"}
)

type columns struct {
	code, modifier, rate, volume int
}

// Parse reads contract lines from r. Only CSV and XLSX are accepted as input.
func Parse(r io.Reader, format Format) ([]model.ContractLine, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatXLSX:
		return ParseXLSX(r)
	}
	return nil, model.Errorf(model.KindInvalidInput, "%s is not an accepted upload format", format)
}

// ParseCSV reads a CSV rate sheet. The header row must name a code column and
// a rate column; volume and modifier are optional. Bad rows become lines with
// Err set.
func ParseCSV(r io.Reader) ([]model.ContractLine, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.Errorf(model.KindInvalidInput, "file is empty")
	}
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalidInput, Message: "read header", Err: err}
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var lines []model.ContractLine
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			var pe *csv.ParseError
			row := 0
			if errors.As(err, &pe) {
				row = pe.StartLine
			}
			lines = append(lines, model.ContractLine{
				SourceRow: row,
				Err:       &model.LineError{Kind: model.KindRowParse, Message: err.Error()},
			})
			continue
		}
		if blank(rec) {
			continue
		}
		row, _ := cr.FieldPos(0)
		lines = append(lines, parseRow(row, rec, cols))
	}
}

// ParseXLSX reads the first worksheet of an XLSX workbook with the same
// header rules as ParseCSV.
func ParseXLSX(r io.Reader) ([]model.ContractLine, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalidInput, Message: "open workbook", Err: err}
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, model.Errorf(model.KindInvalidInput, "workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalidInput, Message: "read sheet " + sheets[0], Err: err}
	}
	if len(rows) == 0 {
		return nil, model.Errorf(model.KindInvalidInput, "sheet %s is empty", sheets[0])
	}
	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var lines []model.ContractLine
	for i, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		lines = append(lines, parseRow(i+2, rec, cols))
	}
	return lines, nil
}

func mapColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.Join(strings.Fields(key), "_")
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				return i
			}
		}
		return -1
	}

	c := columns{
		code:     find(codeHeaders),
		modifier: find(modifierHeaders),
		rate:     find(rateHeaders),
		volume:   find(volumeHeaders),
	}
	var missing []string
	if c.code < 0 {
		missing = append(missing, "code")
	}
	if c.rate < 0 {
		missing = append(missing, "rate")
	}
	if len(missing) > 0 {
		return c, model.Errorf(model.KindInvalidInput, "header is missing required column(s): %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func parseRow(row int, rec []string, c columns) model.ContractLine {
	code, modifier := normalize.CodeAndModifier(cell(rec, c.code), cell(rec, c.modifier))
	line := model.ContractLine{SourceRow: row, Code: code, Modifier: modifier}

	if code == "" {
		return rowError(line, "empty code")
	}

	rawRate := cell(rec, c.rate)
	if rawRate == "" {
		return rowError(line, "empty rate")
	}
	rate, err := normalize.Amount(rawRate)
	if err != nil {
		return rowError(line, fmt.Sprintf("rate %q is not numeric", rawRate))
	}
	line.ContractedRate = &rate

	if rawVol := cell(rec, c.volume); rawVol != "" {
		v, err := normalize.Count(rawVol)
		if err != nil {
			return rowError(line, fmt.Sprintf("volume %q is not a non-negative whole number", rawVol))
		}
		line.Volume = &v
	}
	return line
}

func rowError(line model.ContractLine, msg string) model.ContractLine {
	line.Err = &model.LineError{Kind: model.KindRowParse, Message: fmt.Sprintf("row %d: %s", line.SourceRow, msg)}
	return line
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
