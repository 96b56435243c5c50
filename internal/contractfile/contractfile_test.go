package contractfile_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	goparquet "github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/feesched/internal/analysis"
	"github.com/gyeh/feesched/internal/contractfile"
	"github.com/gyeh/feesched/internal/locality"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
	"github.com/gyeh/feesched/internal/refdata"
)

func newAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	store := refdata.NewStore(refdata.NewCSVSource("../../testdata/refdata"), zerolog.Nop())
	resolver := locality.NewResolver(store, locality.Policy{}, zerolog.Nop())
	svc, err := pricing.NewService(store, resolver, 64, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return analysis.New(svc, resolver, analysis.DefaultOptions(), zerolog.Nop())
}

const sheet = "\ufeffCPT Code, Units ,Contracted Rate,Mod\n" +
	"99213,100,$75.00,\n" +
	"99214-25,50,\"$1,150.00\",\n" +
	",10,20.00,\n" +
	"\n" +
	"71046,,abc,26\n" +
	"71046,2.5,10.00,26\n" +
	"ZZZZZ,,50,\n"

func TestParseCSV(t *testing.T) {
	lines, err := contractfile.ParseCSV(strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want 6 (blank row skipped)", len(lines))
	}

	first := lines[0]
	if first.Code != "99213" || first.ContractedRate.StringFixed(2) != "75.00" || *first.Volume != 100 || first.SourceRow != 2 {
		t.Errorf("line 1 = %+v", first)
	}
	second := lines[1]
	if second.Code != "99214" || second.Modifier != "25" || second.ContractedRate.StringFixed(2) != "1150.00" {
		t.Errorf("line 2 = %+v", second)
	}

	wantErr := map[int]string{2: "empty code", 3: "not numeric", 4: "whole number"}
	for i, sub := range wantErr {
		l := lines[i]
		if l.Err == nil || l.Err.Kind != model.KindRowParse || !strings.Contains(l.Err.Message, sub) {
			t.Errorf("line %d err = %+v, want %q", i+1, l.Err, sub)
		}
	}
	if lines[3].SourceRow != 6 {
		t.Errorf("source row after blank line = %d, want 6", lines[3].SourceRow)
	}
	if lines[5].Err != nil || lines[5].Code != "ZZZZZ" || lines[5].Volume != nil {
		t.Errorf("line 6 = %+v", lines[5])
	}
}

func TestParseCSVHeaderErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"no rate":        "code,volume\n99213,1\n",
		"no code":        "description,rate\nvisit,1\n",
		"benchmark only": "code,benchmark_rate\n99213,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := contractfile.ParseCSV(strings.NewReader(in))
			if !errors.Is(err, model.ErrInvalidInput) {
				t.Fatalf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestParseXLSX(t *testing.T) {
	wb := excelize.NewFile()
	rows := [][]any{
		{"HCPCS", "Allowed", "Qty"},
		{"G0439", 120.5, 3},
		{"99213", "n/a", nil},
		{},
		{"20610", "85.31", "1,200"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	lines, err := contractfile.ParseXLSX(&buf)
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0].Code != "G0439" || lines[0].ContractedRate.String() != "120.5" || *lines[0].Volume != 3 {
		t.Errorf("line 1 = %+v", lines[0])
	}
	if lines[1].Err == nil || lines[1].SourceRow != 3 {
		t.Errorf("line 2 = %+v", lines[1])
	}
	if lines[2].SourceRow != 5 || *lines[2].Volume != 1200 {
		t.Errorf("line 3 = %+v", lines[2])
	}
}

func TestFormats(t *testing.T) {
	for name, want := range map[string]contractfile.Format{
		"rates.CSV":     contractfile.FormatCSV,
		"rates.xlsx":    contractfile.FormatXLSX,
		"out.parquet":   contractfile.FormatParquet,
		"out.json":      contractfile.FormatJSON,
		"dir/rates.xls": contractfile.FormatXLSX,
	} {
		got, err := contractfile.FormatFromName(name)
		if err != nil || got != want {
			t.Errorf("FormatFromName(%s) = %s, %v", name, got, err)
		}
	}
	if _, err := contractfile.FormatFromName("rates.txt"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("txt err = %v", err)
	}
	if _, err := contractfile.Parse(strings.NewReader("x"), contractfile.FormatParquet); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("parquet upload err = %v", err)
	}
}

func analyzeSheet(t *testing.T, a *analysis.Analyzer, lines []model.ContractLine) *model.AnalysisResult {
	t.Helper()
	res, err := a.Analyze(context.Background(), model.AnalysisRequest{Lines: lines, Zip: "10001", Year: 2025})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return res
}

func TestCSVRoundTrip(t *testing.T) {
	a := newAnalyzer(t)
	lines, err := contractfile.ParseCSV(strings.NewReader(sheet))
	if err != nil {
		t.Fatal(err)
	}
	first := analyzeSheet(t, a, lines)

	var buf bytes.Buffer
	if err := contractfile.WriteCSV(&buf, first); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.HasPrefix(buf.String(), strings.Join(contractfile.ExportColumns, ",")+"\n") {
		t.Fatalf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	again, err := contractfile.ParseCSV(&buf)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	second := analyzeSheet(t, a, again)

	if len(second.LineItems) != len(first.LineItems) {
		t.Fatalf("line count %d != %d", len(second.LineItems), len(first.LineItems))
	}
	for i := range first.LineItems {
		x, y := first.LineItems[i], second.LineItems[i]
		if !x.Matched {
			continue
		}
		if !y.Matched {
			t.Errorf("line %d no longer matches: %s", i+1, y.Error)
			continue
		}
		if !x.BenchmarkRate.Equal(*y.BenchmarkRate) || !x.Variance.Equal(*y.Variance) {
			t.Errorf("line %d: benchmark %s/%s variance %s/%s", i+1,
				x.BenchmarkRate, y.BenchmarkRate, x.Variance, y.Variance)
		}
	}
}

func TestRoundTripKeepsSubCentRates(t *testing.T) {
	a := newAnalyzer(t)
	lines, err := contractfile.ParseCSV(strings.NewReader("code,rate,volume\n99213,75.005,10\n"))
	if err != nil {
		t.Fatal(err)
	}
	first := analyzeSheet(t, a, lines)
	if got := first.LineItems[0].Variance.String(); got != "-30.435" {
		t.Fatalf("variance = %s, want -30.435", got)
	}

	for _, f := range []contractfile.Format{contractfile.FormatCSV, contractfile.FormatXLSX} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			if err := contractfile.Write(&buf, first, f); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if f == contractfile.FormatCSV && !strings.Contains(buf.String(), ",75.005,") {
				t.Errorf("contracted rate not exported at full precision:\n%s", buf.String())
			}
			again, err := contractfile.Parse(bytes.NewReader(buf.Bytes()), f)
			if err != nil {
				t.Fatalf("re-parse: %v", err)
			}
			second := analyzeSheet(t, a, again)
			x, y := first.LineItems[0], second.LineItems[0]
			if !y.Matched || !x.Variance.Equal(*y.Variance) || !x.RevenueImpact.Equal(*y.RevenueImpact) {
				t.Errorf("variance %s/%s impact %s/%s", x.Variance, y.Variance, x.RevenueImpact, y.RevenueImpact)
			}
		})
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	a := newAnalyzer(t)
	lines, err := contractfile.ParseCSV(strings.NewReader("code,rate,volume\n99213,75,100\n99214,150.10,\n36415,3,7\n"))
	if err != nil {
		t.Fatal(err)
	}
	first := analyzeSheet(t, a, lines)

	var buf bytes.Buffer
	if err := contractfile.WriteXLSX(&buf, first); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got := wb.GetSheetList(); len(got) != 1 || got[0] != contractfile.SheetName {
		t.Errorf("sheets = %v", got)
	}
	wb.Close()

	again, err := contractfile.ParseXLSX(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}
	second := analyzeSheet(t, a, again)
	for i := range first.LineItems {
		x, y := first.LineItems[i], second.LineItems[i]
		if !x.Variance.Equal(*y.Variance) {
			t.Errorf("line %d variance %s != %s", i+1, x.Variance, y.Variance)
		}
		if (x.Volume == nil) != (y.Volume == nil) {
			t.Errorf("line %d volume presence changed", i+1)
		}
	}
}

func TestWriteParquet(t *testing.T) {
	a := newAnalyzer(t)
	lines, err := contractfile.ParseCSV(strings.NewReader("code,rate,volume\n99213,75,100\nZZZZZ,1,\n36415,3,\n"))
	if err != nil {
		t.Fatal(err)
	}
	res := analyzeSheet(t, a, lines)

	var buf bytes.Buffer
	if err := contractfile.WriteParquet(&buf, res); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	rows, err := goparquet.Read[model.AnalysisParquetRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}

	r := rows[0]
	if r.AnalysisID != res.AnalysisID || r.Line != 1 || r.Code != "99213" {
		t.Errorf("row 1 = %+v", r)
	}
	if r.BenchmarkCents == nil || *r.BenchmarkCents != 10544 {
		t.Errorf("benchmark cents = %v", r.BenchmarkCents)
	}
	if r.VarianceCents == nil || *r.VarianceCents != -3044 {
		t.Errorf("variance cents = %v", r.VarianceCents)
	}
	if r.VariancePctBPS == nil || *r.VariancePctBPS != -2887 {
		t.Errorf("variance bps = %v", r.VariancePctBPS)
	}
	if r.RevenueImpactCents == nil || *r.RevenueImpactCents != -304400 {
		t.Errorf("revenue impact cents = %v", r.RevenueImpactCents)
	}
	if !r.RedFlag {
		t.Error("row 1 should be a red flag")
	}

	if rows[1].Error == nil || rows[1].BenchmarkCents != nil {
		t.Errorf("unmatched row = %+v", rows[1])
	}
	if rows[2].VariancePctBPS != nil {
		t.Errorf("zero benchmark should have null pct, got %d", *rows[2].VariancePctBPS)
	}
}

func TestWriteJSON(t *testing.T) {
	a := newAnalyzer(t)
	res := analyzeSheet(t, a, []model.ContractLine{{Code: "99213", ContractedRate: nil}})
	var buf bytes.Buffer
	if err := contractfile.Write(&buf, res, contractfile.FormatJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"benchmark_rate": null`) {
		t.Errorf("unmatched line should serialize null benchmark:\n%s", buf.String())
	}
}
