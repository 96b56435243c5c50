// mkfixture writes a small reference dataset from a full one: the selected
// codes (every modifier row), all localities, and the ZIPs mapped to them.
// Usage: go run ./cmd/mkfixture --data-dir data --year 2025 --codes 99213,99214,G0439 --out testdata/refdata
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	goparquet "github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
)

type step struct {
	name string
	fn   func() error
}

func main() {
	dataDir := flag.String("data-dir", "data", "source reference dataset")
	year := flag.Int("year", 0, "year to subset (required)")
	codeList := flag.String("codes", "", "comma-separated codes to keep (required)")
	zipList := flag.String("zips", "", "comma-separated ZIPs to keep (default: all)")
	out := flag.String("out", "testdata/refdata", "output dataset directory")
	gz := flag.Bool("gzip", false, "write .csv.gz tables")
	pq := flag.Bool("parquet", false, "write the code table as codes.parquet")
	flag.Parse()

	if *year == 0 || *codeList == "" {
		fmt.Fprintln(os.Stderr, "--year and --codes are required")
		os.Exit(1)
	}

	tables, err := refdata.NewCSVSource(*dataDir).ReadTables(context.Background(), *year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *dataDir, err)
		os.Exit(1)
	}

	keepCodes := make(map[string]bool)
	for _, c := range strings.Split(*codeList, ",") {
		if c = normalize.Code(c); c != "" {
			keepCodes[c] = true
		}
	}
	var codes []model.CodeRecord
	for _, r := range tables.Codes {
		if keepCodes[r.Code] {
			codes = append(codes, r)
		}
	}

	zips := tables.Zips
	if *zipList != "" {
		keepZips := make(map[string]bool)
		for _, z := range strings.Split(*zipList, ",") {
			if z, err := normalize.ZIP(z); err == nil {
				keepZips[z] = true
			}
		}
		zips = nil
		for _, z := range tables.Zips {
			if keepZips[z.Zip] {
				zips = append(zips, z)
			}
		}
	}
	sort.Slice(zips, func(i, j int) bool { return zips[i].Zip < zips[j].Zip })

	yearDir := filepath.Join(*out, strconv.Itoa(*year))
	if err := os.MkdirAll(yearDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", yearDir, err)
		os.Exit(1)
	}

	ext := ".csv"
	if *gz {
		ext = ".csv.gz"
	}
	steps := []step{
		{"conversion_factors.csv", func() error {
			return writeConversionFactor(filepath.Join(*out, "conversion_factors.csv"), *year, tables.ConversionFactor)
		}},
		{"localities" + ext, func() error {
			return writeTable(filepath.Join(yearDir, "localities"+ext), localityRows(tables.Localities))
		}},
		{"zip_localities" + ext, func() error {
			return writeTable(filepath.Join(yearDir, "zip_localities"+ext), zipRows(zips))
		}},
	}
	if *pq {
		steps = append(steps, step{"codes.parquet", func() error {
			return writeCodesParquet(filepath.Join(yearDir, "codes.parquet"), codes)
		}})
	} else {
		steps = append(steps, step{"codes" + ext, func() error {
			return writeTable(filepath.Join(yearDir, "codes"+ext), codeRows(codes))
		}})
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", s.name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Wrote %s for %d\n", *out, *year)
	fmt.Printf("  %-12s %d (of %d)\n", "codes", len(codes), len(tables.Codes))
	counts := model.CountByCodeSystem(codes)
	for _, cs := range model.AllCodeSystems {
		if n := counts[cs.Name]; n > 0 {
			fmt.Printf("    %-10s %d\n", cs.Name, n)
		}
	}
	fmt.Printf("  %-12s %d\n", "localities", len(tables.Localities))
	fmt.Printf("  %-12s %d (of %d)\n", "zips", len(zips), len(tables.Zips))
	if missing := len(keepCodes) - distinctCodes(codes); missing > 0 {
		fmt.Printf("  %d requested codes not in the %d table\n", missing, *year)
	}
}

// writeConversionFactor adds or replaces year in conversion_factors.csv so
// several years can be written into the same fixture directory.
func writeConversionFactor(path string, year int, cf decimal.Decimal) error {
	factors := map[int]string{year: cf.String()}
	if f, err := os.Open(path); err == nil {
		recs, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			return err
		}
		for i, rec := range recs {
			if i == 0 || len(rec) < 2 {
				continue
			}
			y, err := strconv.Atoi(strings.TrimSpace(rec[0]))
			if err != nil || y == year {
				continue
			}
			factors[y] = strings.TrimSpace(rec[1])
		}
	}

	years := make([]int, 0, len(factors))
	for y := range factors {
		years = append(years, y)
	}
	sort.Ints(years)
	rows := [][]string{{"year", "conversion_factor"}}
	for _, y := range years {
		rows = append(rows, []string{strconv.Itoa(y), factors[y]})
	}
	return writeTable(path, rows)
}

// writeTable writes rows as CSV, gzip-compressed when path ends in .gz.
func writeTable(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var zw *pgzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = pgzip.NewWriter(f)
		w = zw
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func codeRows(codes []model.CodeRecord) [][]string {
	rows := [][]string{{"code", "modifier", "description", "status_code", "work_rvu",
		"nonfacility_pe_rvu", "facility_pe_rvu", "mp_rvu", "global_period"}}
	for _, r := range codes {
		rows = append(rows, []string{
			r.Code, r.Modifier, r.Description, r.StatusCode,
			r.WorkRVU.String(),
			pe(r.NonFacilityPERVU, r.NonFacilityPENA),
			pe(r.FacilityPERVU, r.FacilityPENA),
			r.MalpracticeRVU.String(),
			r.GlobalPeriod,
		})
	}
	return rows
}

func pe(v decimal.Decimal, na bool) string {
	if na {
		return "NA"
	}
	return v.String()
}

func localityRows(locs []model.LocalityRecord) [][]string {
	sorted := append([]model.LocalityRecord(nil), locs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	rows := [][]string{{"locality_code", "contractor", "state", "name", "work_gpci", "pe_gpci", "mp_gpci", "is_state_default"}}
	for _, l := range sorted {
		def := ""
		if l.StateDefault {
			def = "Y"
		}
		rows = append(rows, []string{
			l.Code, l.Contractor, l.State, l.Name,
			l.WorkGPCI.String(), l.PEGPCI.String(), l.MPGPCI.String(), def,
		})
	}
	return rows
}

func zipRows(zips []model.ZipLocality) [][]string {
	rows := [][]string{{"zip5", "state", "locality_code"}}
	for _, z := range zips {
		rows = append(rows, []string{z.Zip, z.State, z.LocalityCode})
	}
	return rows
}

func writeCodesParquet(path string, codes []model.CodeRecord) error {
	rows := make([]model.CodeParquetRow, len(codes))
	for i, r := range codes {
		rows[i] = model.CodeParquetRow{
			Code:         r.Code,
			Modifier:     optional(r.Modifier),
			Description:  r.Description,
			StatusCode:   optional(r.StatusCode),
			WorkRVU:      r.WorkRVU.InexactFloat64(),
			MPRVU:        r.MalpracticeRVU.InexactFloat64(),
			GlobalPeriod: optional(r.GlobalPeriod),
		}
		if !r.NonFacilityPENA {
			v := r.NonFacilityPERVU.InexactFloat64()
			rows[i].NonFacilityPERVU = &v
		}
		if !r.FacilityPENA {
			v := r.FacilityPERVU.InexactFloat64()
			rows[i].FacilityPERVU = &v
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	writer := goparquet.NewGenericWriter[model.CodeParquetRow](f)
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func distinctCodes(codes []model.CodeRecord) int {
	seen := make(map[string]bool)
	for _, r := range codes {
		seen[r.Code] = true
	}
	return len(seen)
}
