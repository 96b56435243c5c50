package refdata_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/pgzip"
	goparquet "github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/refdata"
)

const fixtureDir = "../../testdata/refdata"

func TestCSVSourceYears(t *testing.T) {
	years, err := refdata.NewCSVSource(fixtureDir).Years(context.Background())
	if err != nil {
		t.Fatalf("Years: %v", err)
	}
	if !reflect.DeepEqual(years, []int{2024, 2025}) {
		t.Errorf("years = %v, want [2024 2025]", years)
	}
}

func TestCSVSourceLoadYear(t *testing.T) {
	snap, err := refdata.NewCSVSource(fixtureDir).LoadYear(context.Background(), 2025)
	if err != nil {
		t.Fatalf("LoadYear: %v", err)
	}

	if !snap.ConversionFactor.Equal(decimal.RequireFromString("32.3465")) {
		t.Errorf("conversion factor = %s", snap.ConversionFactor)
	}
	if n := len(snap.Codes()); n != 13 {
		t.Errorf("codes = %d, want 13", n)
	}
	if n := snap.NumLocalities(); n != 6 {
		t.Errorf("localities = %d, want 6", n)
	}
	if n := snap.NumZips(); n != 15 {
		t.Errorf("zips = %d, want 15", n)
	}

	rec, ok := snap.Code("99213", "")
	if !ok {
		t.Fatal("99213 missing")
	}
	if !rec.WorkRVU.Equal(decimal.RequireFromString("1.30")) || rec.Year != 2025 {
		t.Errorf("99213 = %+v", rec)
	}

	chest, ok := snap.Code("71046", "")
	if !ok {
		t.Fatal("71046 missing")
	}
	if !chest.FacilityPENA || !chest.FacilityPERVU.IsZero() {
		t.Errorf("71046 facility PE should be NA/zero, got %s na=%v", chest.FacilityPERVU, chest.FacilityPENA)
	}
	if chest.NonFacilityPENA {
		t.Error("71046 non-facility PE should be applicable")
	}
	if _, ok := snap.Code("71046", "26"); !ok {
		t.Error("71046-26 missing")
	}

	codes := snap.Codes()
	for i := 1; i < len(codes); i++ {
		a, b := codes[i-1], codes[i]
		if a.Code > b.Code || (a.Code == b.Code && a.Modifier >= b.Modifier) {
			t.Errorf("codes not sorted at %d: %s > %s", i, a.Key(), b.Key())
		}
	}
}

func TestSnapshotStateDefaults(t *testing.T) {
	snap, err := refdata.NewCSVSource(fixtureDir).LoadYear(context.Background(), 2025)
	if err != nil {
		t.Fatalf("LoadYear: %v", err)
	}

	tests := []struct {
		state string
		want  string
	}{
		{"NY", "1328299"}, // most ZIPs
		{"CA", "0111275"}, // flagged
		{"AL", "1011200"},
	}
	for _, tt := range tests {
		got, ok := snap.StateDefault(tt.state)
		if !ok || got != tt.want {
			t.Errorf("StateDefault(%s) = %q, %v; want %q", tt.state, got, ok, tt.want)
		}
	}
	if _, ok := snap.StateDefault("TX"); ok {
		t.Error("TX should have no default")
	}

	if st, ok := snap.StateForPrefix("900"); !ok || st != "CA" {
		t.Errorf("StateForPrefix(900) = %q, %v", st, ok)
	}
	if _, ok := snap.StateForPrefix("123"); ok {
		t.Error("prefix 123 is not in the data")
	}
}

func TestCSVSourceUnsupportedYear(t *testing.T) {
	_, err := refdata.NewCSVSource(fixtureDir).LoadYear(context.Background(), 2019)
	if !errors.Is(err, model.ErrUnsupportedYear) {
		t.Fatalf("err = %v, want UNSUPPORTED_YEAR", err)
	}
}

// writeYear writes a minimal single-year dataset and returns its root.
func writeYear(t *testing.T, codesName string, codes []byte) string {
	t.Helper()
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "conversion_factors.csv"), "year,conversion_factor\n2025,32.3465\n")
	yd := filepath.Join(dir, "2025")
	if err := os.MkdirAll(yd, 0o755); err != nil {
		t.Fatal(err)
	}
	if codes != nil {
		if err := os.WriteFile(filepath.Join(yd, codesName), codes, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(t, filepath.Join(yd, "localities.csv"),
		"\ufefflocality_code,state,name,work_gpci,pe_gpci,mp_gpci\n0111275,CA,REST OF CALIFORNIA,1.019,1.079,0.542\n")
	mustWrite(t, filepath.Join(yd, "zip_localities.csv"), "zip5,locality_code\n95814-1234,0111275\n")
	return dir
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCSVSourceGzipCodes(t *testing.T) {
	var buf strings.Builder
	gz := pgzip.NewWriter(&buf)
	gz.Write([]byte("CODE,Description,WORK_RVU,nonfacility_pe_rvu,facility_pe_rvu,mp_rvu\n99213,visit,1.30,1.34,0.55,0.10\n"))
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	dir := writeYear(t, "codes.csv.gz", []byte(buf.String()))

	snap, err := refdata.NewCSVSource(dir).LoadYear(context.Background(), 2025)
	if err != nil {
		t.Fatalf("LoadYear: %v", err)
	}
	if _, ok := snap.Code("99213", ""); !ok {
		t.Error("99213 missing from gzipped table")
	}
	z, ok := snap.Zip("95814")
	if !ok || z.State != "CA" {
		t.Errorf("zip 95814 = %+v, %v; state should be filled from locality", z, ok)
	}
}

func TestCSVSourceParquetCodes(t *testing.T) {
	dir := writeYear(t, "", nil)
	nf := 1.34
	mod := "26"
	rows := []model.CodeParquetRow{
		{Code: "99213", Description: "visit", WorkRVU: 1.30, NonFacilityPERVU: &nf, MPRVU: 0.10},
		{Code: "71046", Modifier: &mod, Description: "chest", WorkRVU: 0.22, NonFacilityPERVU: &nf, MPRVU: 0.02},
	}
	if err := goparquet.WriteFile(filepath.Join(dir, "2025", "codes.parquet"), rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	snap, err := refdata.NewCSVSource(dir).LoadYear(context.Background(), 2025)
	if err != nil {
		t.Fatalf("LoadYear: %v", err)
	}
	rec, ok := snap.Code("99213", "")
	if !ok {
		t.Fatal("99213 missing")
	}
	if !rec.WorkRVU.Equal(decimal.RequireFromString("1.3")) {
		t.Errorf("work rvu = %s", rec.WorkRVU)
	}
	if !rec.FacilityPENA {
		t.Error("null facility PE should be NA")
	}
	if _, ok := snap.Code("71046", "26"); !ok {
		t.Error("71046-26 missing")
	}
}

func TestCSVSourceRejectsBadTables(t *testing.T) {
	tests := []struct {
		name  string
		codes string
		want  string
	}{
		{"missing column", "code,description,work_rvu,nonfacility_pe_rvu\n99213,x,1,1\n", "missing required column"},
		{"duplicate", "code,description,work_rvu,nonfacility_pe_rvu,mp_rvu\n99213,x,1,1,1\n99213,y,1,1,1\n", "duplicate code row"},
		{"bad rvu", "code,description,work_rvu,nonfacility_pe_rvu,mp_rvu\n99213,x,abc,1,1\n", "line 2"},
		{"blank work rvu", "code,modifier,description,status_code,work_rvu,nonfacility_pe_rvu,facility_pe_rvu,mp_rvu,global_period\n" +
			"99214,,visit,A,1.92,1.90,0.80,0.13,XXX\n99213,,visit,A,,1.34,0.55,,XXX\n", "line 3: work_rvu: required value missing"},
		{"NA mp rvu", "code,description,work_rvu,nonfacility_pe_rvu,mp_rvu\n99213,x,1.30,1.34,NA\n", "line 2: mp_rvu: required value missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeYear(t, "codes.csv", []byte(tt.codes))
			_, err := refdata.NewCSVSource(dir).LoadYear(context.Background(), 2025)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSnapshotRejectsUnknownLocality(t *testing.T) {
	_, err := refdata.NewSnapshot(2025, decimal.NewFromInt(32), nil, nil,
		[]model.ZipLocality{{Zip: "10001", LocalityCode: "nope"}})
	if err == nil || !strings.Contains(err.Error(), "unknown locality") {
		t.Fatalf("err = %v", err)
	}
}

func TestSnapshotRejectsDuplicateZip(t *testing.T) {
	locs := []model.LocalityRecord{
		{Code: "NY01", State: "NY", WorkGPCI: decimal.NewFromInt(1), PEGPCI: decimal.NewFromInt(1), MPGPCI: decimal.NewFromInt(1)},
		{Code: "NY99", State: "NY", WorkGPCI: decimal.NewFromInt(1), PEGPCI: decimal.NewFromInt(1), MPGPCI: decimal.NewFromInt(1)},
	}
	_, err := refdata.NewSnapshot(2025, decimal.NewFromInt(32), nil, locs, []model.ZipLocality{
		{Zip: "10001", LocalityCode: "NY01"},
		{Zip: "10002", LocalityCode: "NY99"},
		{Zip: "10001", LocalityCode: "NY99"},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate zip 10001") {
		t.Fatalf("err = %v", err)
	}
}

// countingSource wraps a Source and counts LoadYear calls.
type countingSource struct {
	refdata.Source
	loads atomic.Int32
	fail  atomic.Bool
}

func (c *countingSource) LoadYear(ctx context.Context, year int) (*refdata.Snapshot, error) {
	c.loads.Add(1)
	if c.fail.Load() {
		return nil, errors.New("disk on fire")
	}
	return c.Source.LoadYear(ctx, year)
}

func TestStoreLoadsOnce(t *testing.T) {
	src := &countingSource{Source: refdata.NewCSVSource(fixtureDir)}
	store := refdata.NewStore(src, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Get(context.Background(), 2025); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestStoreRetriesAfterFailure(t *testing.T) {
	src := &countingSource{Source: refdata.NewCSVSource(fixtureDir)}
	src.fail.Store(true)
	store := refdata.NewStore(src, zerolog.Nop())

	if _, err := store.Get(context.Background(), 2025); err == nil {
		t.Fatal("expected failure")
	}
	src.fail.Store(false)
	if _, err := store.Get(context.Background(), 2025); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := src.loads.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestStoreLookups(t *testing.T) {
	store := refdata.NewStore(refdata.NewCSVSource(fixtureDir), zerolog.Nop())
	ctx := context.Background()

	if _, err := store.CodeRecord(ctx, "ZZZZZ", "", 2025); !errors.Is(err, model.ErrCodeNotFound) {
		t.Errorf("CodeRecord(ZZZZZ) err = %v", err)
	}
	if _, err := store.LocalityRecord(ctx, "9999999", 2025); !errors.Is(err, model.ErrLocalityNotFound) {
		t.Errorf("LocalityRecord(9999999) err = %v", err)
	}
	loc, err := store.LocalityRecord(ctx, "1320201", 2025)
	if err != nil || loc.Name != "MANHATTAN" {
		t.Errorf("LocalityRecord(1320201) = %+v, %v", loc, err)
	}
	cf, err := store.ConversionFactor(ctx, 2024)
	if err != nil || !cf.Equal(decimal.RequireFromString("33.2875")) {
		t.Errorf("ConversionFactor(2024) = %s, %v", cf, err)
	}
	if _, err := store.ConversionFactor(ctx, 1999); !errors.Is(err, model.ErrUnsupportedYear) {
		t.Errorf("ConversionFactor(1999) err = %v", err)
	}
}
