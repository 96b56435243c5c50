package refdata

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/parquetread"
)

// CSVSource reads reference data from a directory laid out as
//
//	<dir>/conversion_factors.csv
//	<dir>/<year>/codes.csv        (or codes.csv.gz, codes.parquet)
//	<dir>/<year>/localities.csv   (or .csv.gz)
//	<dir>/<year>/zip_localities.csv (or .csv.gz)
type CSVSource struct {
	Dir string
}

// NewCSVSource returns a Source rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Tables is the parsed, not yet indexed, content of one reference year.
type Tables struct {
	Year             int
	ConversionFactor decimal.Decimal
	Codes            []model.CodeRecord
	Localities       []model.LocalityRecord
	Zips             []model.ZipLocality
	Files            []string
}

// Years returns the years that have both a conversion factor and a data
// directory, ascending.
func (s *CSVSource) Years(_ context.Context) ([]int, error) {
	cfs, err := s.conversionFactors()
	if err != nil {
		return nil, err
	}
	var years []int
	for y := range cfs {
		if fi, err := os.Stat(filepath.Join(s.Dir, strconv.Itoa(y))); err == nil && fi.IsDir() {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// LoadYear parses and indexes one year.
func (s *CSVSource) LoadYear(ctx context.Context, year int) (*Snapshot, error) {
	t, err := s.ReadTables(ctx, year)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(year, t.ConversionFactor, t.Codes, t.Localities, t.Zips)
}

// ReadTables parses the three tables and the conversion factor for year.
func (s *CSVSource) ReadTables(ctx context.Context, year int) (*Tables, error) {
	cfs, err := s.conversionFactors()
	if err != nil {
		return nil, err
	}
	cf, ok := cfs[year]
	if !ok {
		return nil, unsupportedYear(year)
	}
	yearDir := filepath.Join(s.Dir, strconv.Itoa(year))
	if fi, err := os.Stat(yearDir); err != nil || !fi.IsDir() {
		return nil, unsupportedYear(year)
	}

	t := &Tables{Year: year, ConversionFactor: cf}

	codesPath, err := findTable(yearDir, "codes", ".csv", ".csv.gz", ".parquet")
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(codesPath, ".parquet") {
		t.Codes, err = readCodesParquet(codesPath)
	} else {
		t.Codes, err = readCodesCSV(codesPath)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locPath, err := findTable(yearDir, "localities", ".csv", ".csv.gz")
	if err != nil {
		return nil, err
	}
	if t.Localities, err = readLocalities(locPath); err != nil {
		return nil, err
	}

	zipPath, err := findTable(yearDir, "zip_localities", ".csv", ".csv.gz")
	if err != nil {
		return nil, err
	}
	if t.Zips, err = readZips(zipPath); err != nil {
		return nil, err
	}

	t.Files = []string{filepath.Join(s.Dir, "conversion_factors.csv"), codesPath, locPath, zipPath}
	return t, nil
}

func (s *CSVSource) conversionFactors() (map[int]decimal.Decimal, error) {
	path := filepath.Join(s.Dir, "conversion_factors.csv")
	tr, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	if err := tr.require("year", "conversion_factor"); err != nil {
		return nil, err
	}

	out := make(map[int]decimal.Decimal)
	for {
		rec, err := tr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		year, err := strconv.Atoi(tr.field(rec, "year"))
		if err != nil {
			return nil, tr.errorf("bad year %q", tr.field(rec, "year"))
		}
		cf, err := decimal.NewFromString(tr.field(rec, "conversion_factor"))
		if err != nil || !cf.IsPositive() {
			return nil, tr.errorf("bad conversion factor %q", tr.field(rec, "conversion_factor"))
		}
		out[year] = cf
	}
}

func readCodesCSV(path string) ([]model.CodeRecord, error) {
	tr, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	if err := tr.require("code", "description", "work_rvu", "mp_rvu"); err != nil {
		return nil, err
	}
	if !tr.has("nonfacility_pe_rvu") && !tr.has("facility_pe_rvu") {
		return nil, fmt.Errorf("%s: no practice-expense columns", path)
	}

	var out []model.CodeRecord
	for {
		rec, err := tr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		code, mod := normalize.CodeAndModifier(tr.field(rec, "code"), tr.field(rec, "modifier"))
		if code == "" {
			return nil, tr.errorf("empty code")
		}
		r := model.CodeRecord{
			Code:         code,
			Modifier:     mod,
			Description:  strings.TrimSpace(tr.field(rec, "description")),
			StatusCode:   strings.ToUpper(tr.field(rec, "status_code")),
			GlobalPeriod: strings.ToUpper(tr.field(rec, "global_period")),
		}
		if r.WorkRVU, err = requiredRVU(tr.field(rec, "work_rvu")); err != nil {
			return nil, tr.errorf("work_rvu: %v", err)
		}
		if r.MalpracticeRVU, err = requiredRVU(tr.field(rec, "mp_rvu")); err != nil {
			return nil, tr.errorf("mp_rvu: %v", err)
		}
		if r.NonFacilityPERVU, r.NonFacilityPENA, err = rvu(tr.field(rec, "nonfacility_pe_rvu")); err != nil {
			return nil, tr.errorf("nonfacility_pe_rvu: %v", err)
		}
		if r.FacilityPERVU, r.FacilityPENA, err = rvu(tr.field(rec, "facility_pe_rvu")); err != nil {
			return nil, tr.errorf("facility_pe_rvu: %v", err)
		}
		out = append(out, r)
	}
}

func readCodesParquet(path string) ([]model.CodeRecord, error) {
	r, err := parquetread.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]model.CodeRecord, 0, len(rows))
	for i, row := range rows {
		code, mod := normalize.CodeAndModifier(row.Code, deref(row.Modifier))
		if code == "" {
			return nil, fmt.Errorf("%s row %d: empty code", path, i+1)
		}
		r := model.CodeRecord{
			Code:             code,
			Modifier:         mod,
			Description:      strings.TrimSpace(row.Description),
			StatusCode:       strings.ToUpper(deref(row.StatusCode)),
			GlobalPeriod:     strings.ToUpper(deref(row.GlobalPeriod)),
			WorkRVU:          decimal.NewFromFloat(row.WorkRVU),
			MalpracticeRVU:   decimal.NewFromFloat(row.MPRVU),
			NonFacilityPERVU: decimal.Zero,
			FacilityPERVU:    decimal.Zero,
		}
		if row.NonFacilityPERVU != nil {
			r.NonFacilityPERVU = decimal.NewFromFloat(*row.NonFacilityPERVU)
		} else {
			r.NonFacilityPENA = true
		}
		if row.FacilityPERVU != nil {
			r.FacilityPERVU = decimal.NewFromFloat(*row.FacilityPERVU)
		} else {
			r.FacilityPENA = true
		}
		out = append(out, r)
	}
	return out, nil
}

func readLocalities(path string) ([]model.LocalityRecord, error) {
	tr, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	if err := tr.require("locality_code", "state", "name", "work_gpci", "pe_gpci", "mp_gpci"); err != nil {
		return nil, err
	}

	var out []model.LocalityRecord
	for {
		rec, err := tr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		l := model.LocalityRecord{
			Code:         strings.TrimSpace(tr.field(rec, "locality_code")),
			Contractor:   strings.TrimSpace(tr.field(rec, "contractor")),
			State:        strings.ToUpper(tr.field(rec, "state")),
			Name:         strings.TrimSpace(tr.field(rec, "name")),
			StateDefault: truthy(tr.field(rec, "is_state_default")),
		}
		if l.Code == "" {
			return nil, tr.errorf("empty locality_code")
		}
		for _, g := range []struct {
			col string
			dst *decimal.Decimal
		}{
			{"work_gpci", &l.WorkGPCI},
			{"pe_gpci", &l.PEGPCI},
			{"mp_gpci", &l.MPGPCI},
		} {
			v, err := decimal.NewFromString(tr.field(rec, g.col))
			if err != nil || v.IsNegative() {
				return nil, tr.errorf("bad %s %q", g.col, tr.field(rec, g.col))
			}
			*g.dst = v
		}
		out = append(out, l)
	}
}

func readZips(path string) ([]model.ZipLocality, error) {
	tr, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	if err := tr.require("zip5", "locality_code"); err != nil {
		return nil, err
	}

	var out []model.ZipLocality
	for {
		rec, err := tr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		zip, err := normalize.ZIP(tr.field(rec, "zip5"))
		if err != nil {
			return nil, tr.errorf("%v", err)
		}
		out = append(out, model.ZipLocality{
			Zip:          zip,
			State:        strings.ToUpper(tr.field(rec, "state")),
			LocalityCode: strings.TrimSpace(tr.field(rec, "locality_code")),
		})
	}
}

// rvu parses an RVU cell. "NA" and blank both mean not applicable and
// price as zero.
func rvu(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return decimal.Zero, true, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%q is not numeric", s)
	}
	if d.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("%q is negative", s)
	}
	return d, false, nil
}

// requiredRVU parses an RVU cell that must hold a number. Only the
// practice-expense columns may be NA.
func requiredRVU(s string) (decimal.Decimal, error) {
	d, na, err := rvu(s)
	if err != nil {
		return decimal.Zero, err
	}
	if na {
		return decimal.Zero, fmt.Errorf("required value missing")
	}
	return d, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "t":
		return true
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// findTable returns the first existing <dir>/<name><ext> in extension order.
func findTable(dir, name string, exts ...string) (string, error) {
	for _, ext := range exts {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: no %s table (tried %s)", dir, name, strings.Join(exts, ", "))
}

// tableReader is a header-indexed CSV reader over plain or gzipped files.
type tableReader struct {
	path   string
	closer []io.Closer
	csv    *csv.Reader
	colIdx map[string]int
	line   int
}

func openTable(path string) (*tableReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	tr := &tableReader{path: path, closer: []io.Closer{f}, colIdx: make(map[string]int)}

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		tr.closer = append([]io.Closer{gz}, tr.closer...)
		src = gz
	}

	br := bufio.NewReaderSize(src, 64*1024)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	tr.csv = csv.NewReader(br)
	tr.csv.LazyQuotes = true
	tr.csv.FieldsPerRecord = -1
	tr.csv.ReuseRecord = true

	header, err := tr.csv.Read()
	if err != nil {
		tr.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", path)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	tr.line = 1
	for i, h := range header {
		tr.colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return tr, nil
}

func (tr *tableReader) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !tr.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required column(s): %s", tr.path, strings.Join(missing, ", "))
	}
	return nil
}

func (tr *tableReader) has(col string) bool {
	_, ok := tr.colIdx[col]
	return ok
}

// next returns the next non-blank record.
func (tr *tableReader) next() ([]string, error) {
	for {
		rec, err := tr.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		tr.line++
		if err != nil {
			return nil, tr.errorf("%v", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}

func (tr *tableReader) field(rec []string, col string) string {
	i, ok := tr.colIdx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (tr *tableReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%s line %d: %s", tr.path, tr.line, fmt.Sprintf(format, args...))
}

func (tr *tableReader) Close() error {
	var first error
	for _, c := range tr.closer {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
