package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/db"
	"github.com/gyeh/feesched/internal/ingest"
	"github.com/gyeh/feesched/internal/locality"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
	"github.com/gyeh/feesched/internal/refdata"
)

const (
	testPort     = 15433
	testDB       = "feeschedtest"
	testUser     = "postgres"
	testPassword = "postgres"
	fixtureDir   = "../../testdata/refdata"
)

var testDSN string

func TestMain(m *testing.M) {
	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			RuntimePath(os.TempDir() + "/feesched-embedded-pg").
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "SKIP: embedded postgres did not start: %v\n", err)
		os.Exit(0)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}
	os.Exit(code)
}

// setupDB connects, drops the feesched schemas and reapplies migrations.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := db.NewPool(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS ref CASCADE",
		"DROP SCHEMA IF EXISTS ingest CASCADE",
		"DROP TABLE IF EXISTS public.feesched_migrations",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	// A second run finds everything recorded and applies nothing.
	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("migrations (second run): %v", err)
	}
	return pool
}

func datasetStatuses(t *testing.T, pool *pgxpool.Pool, year int) map[string]int {
	t.Helper()
	rows, err := pool.Query(context.Background(),
		"SELECT status, count(*) FROM ingest.datasets WHERE year = $1 GROUP BY status", int32(year))
	if err != nil {
		t.Fatalf("query datasets: %v", err)
	}
	defer rows.Close()

	got := make(map[string]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got[status] = int(n)
	}
	return got
}

func TestLoadPipeline(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	src := refdata.NewCSVSource(fixtureDir)
	log := zerolog.Nop()

	summary, err := ingest.Run(ctx, pool, src, log, ingest.Options{Year: 2025})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	t.Run("summary_counts", func(t *testing.T) {
		if summary.AlreadyLoaded {
			t.Error("first load reported AlreadyLoaded")
		}
		if summary.CodesLoaded != 13 || summary.LocalitiesLoaded != 6 || summary.ZipsLoaded != 15 {
			t.Errorf("loaded codes=%d localities=%d zips=%d, want 13/6/15",
				summary.CodesLoaded, summary.LocalitiesLoaded, summary.ZipsLoaded)
		}
		if len(summary.FilesSHA256) != 64 {
			t.Errorf("FilesSHA256 = %q", summary.FilesSHA256)
		}
	})

	t.Run("table_counts", func(t *testing.T) {
		for table, want := range map[string]int64{
			"ref.code_rvus":      13,
			"ref.localities":     6,
			"ref.zip_localities": 15,
		} {
			var n int64
			if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table+" WHERE year = 2025").Scan(&n); err != nil {
				t.Fatalf("count %s: %v", table, err)
			}
			if n != want {
				t.Errorf("%s: got %d rows, want %d", table, n, want)
			}
		}
	})

	t.Run("identical_reload_skipped", func(t *testing.T) {
		again, err := ingest.Run(ctx, pool, src, log, ingest.Options{Year: 2025})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !again.AlreadyLoaded || again.DatasetID != summary.DatasetID {
			t.Errorf("second run = %+v, want skip of dataset %s", again, summary.DatasetID)
		}
		if got := datasetStatuses(t, pool, 2025); got["active"] != 1 || len(got) != 1 {
			t.Errorf("statuses = %v", got)
		}
	})

	t.Run("forced_reload_supersedes", func(t *testing.T) {
		forced, err := ingest.Run(ctx, pool, src, log, ingest.Options{Year: 2025, Force: true})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if forced.AlreadyLoaded || forced.DatasetID == summary.DatasetID {
			t.Errorf("forced run = %+v", forced)
		}
		got := datasetStatuses(t, pool, 2025)
		if got["active"] != 1 || got["superseded"] != 1 {
			t.Errorf("statuses = %v, want 1 active and 1 superseded", got)
		}
		var n int64
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM ref.code_rvus WHERE year = 2025").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 13 {
			t.Errorf("code rows after reload = %d, want 13", n)
		}
	})

	t.Run("unsupported_year", func(t *testing.T) {
		_, err := ingest.Run(ctx, pool, src, log, ingest.Options{Year: 2019})
		var pe *ingest.PipelineError
		if !errors.As(err, &pe) || pe.Phase != ingest.PhasePreflight {
			t.Fatalf("err = %v, want preflight PipelineError", err)
		}
		if !errors.Is(err, model.ErrUnsupportedYear) {
			t.Errorf("err = %v, want UNSUPPORTED_YEAR", err)
		}
	})
}

// TestPGSourceMatchesCSV loads both fixture years and checks that prices read
// back through the Postgres source equal those from the CSV source.
func TestPGSourceMatchesCSV(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	src := refdata.NewCSVSource(fixtureDir)

	for _, year := range []int{2024, 2025} {
		if _, err := ingest.Run(ctx, pool, src, zerolog.Nop(), ingest.Options{Year: year}); err != nil {
			t.Fatalf("load %d: %v", year, err)
		}
	}

	pgStore := refdata.NewStore(refdata.NewPGSource(pool), zerolog.Nop())
	csvStore := refdata.NewStore(src, zerolog.Nop())

	years, err := pgStore.Years(ctx)
	if err != nil {
		t.Fatalf("Years: %v", err)
	}
	if len(years) != 2 || years[0] != 2024 || years[1] != 2025 {
		t.Fatalf("Years = %v", years)
	}
	if _, err := pgStore.Get(ctx, 2023); !errors.Is(err, model.ErrUnsupportedYear) {
		t.Errorf("Get(2023) = %v, want UNSUPPORTED_YEAR", err)
	}

	quote := func(store *refdata.Store, req pricing.QuoteRequest) model.PriceQuote {
		t.Helper()
		svc, err := pricing.NewService(store, locality.NewResolver(store, locality.Policy{}, zerolog.Nop()), 0, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		q, err := svc.Quote(ctx, req)
		if err != nil {
			t.Fatalf("Quote(%+v): %v", req, err)
		}
		return q
	}

	reqs := []pricing.QuoteRequest{
		{Code: "99213", Zip: "10001", Year: 2025},
		{Code: "99213", Zip: "10001", Year: 2024},
		{Code: "99213", Zip: "12345", Year: 2025, Setting: model.SettingFacility},
		{Code: "71046", Modifier: "26", Zip: "10001", Year: 2025, Setting: model.SettingFacility},
		{Code: "99214", Zip: "75201", Year: 2025},
	}
	for _, req := range reqs {
		pq, cq := quote(pgStore, req), quote(csvStore, req)
		if !pq.Price.Equal(cq.Price) || !pq.NationalPrice.Equal(cq.NationalPrice) {
			t.Errorf("%+v: postgres %s/%s, csv %s/%s", req, pq.Price, pq.NationalPrice, cq.Price, cq.NationalPrice)
		}
		if pq.Resolution.Method != cq.Resolution.Method || pq.Locality.Code != cq.Locality.Code {
			t.Errorf("%+v: resolution %s/%s vs %s/%s", req,
				pq.Resolution.Method, pq.Locality.Code, cq.Resolution.Method, cq.Locality.Code)
		}
	}

	if q := quote(pgStore, reqs[0]); q.Price.StringFixed(2) != "105.44" {
		t.Errorf("99213 Manhattan from postgres = %s, want 105.44", q.Price.StringFixed(2))
	}
}

// writePreciseDataset copies the 2025 fixture with a conversion factor, a
// GPCI and an RVU carrying more decimal places than the published files.
func writePreciseDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "2025"), 0o755); err != nil {
		t.Fatal(err)
	}
	edits := map[string][2]string{
		"conversion_factors.csv":  {"2025,32.3465", "2025,32.346512"},
		"2025/localities.csv":     {"1.062,1.274,1.720", "1.0625,1.274,1.72031"},
		"2025/codes.csv":          {"A,1.30,1.34,0.55,0.10", "A,1.30005,1.34,0.55,0.10125"},
		"2025/zip_localities.csv": {"", ""},
	}
	for name, edit := range edits {
		data, err := os.ReadFile(filepath.Join(fixtureDir, name))
		if err != nil {
			t.Fatal(err)
		}
		text := string(data)
		if edit[0] != "" {
			if !strings.Contains(text, edit[0]) {
				t.Fatalf("%s does not contain %q", name, edit[0])
			}
			text = strings.Replace(text, edit[0], edit[1], 1)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPGKeepsSourcePrecision(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	src := refdata.NewCSVSource(writePreciseDataset(t))

	if _, err := ingest.Run(ctx, pool, src, zerolog.Nop(), ingest.Options{Year: 2025}); err != nil {
		t.Fatalf("load: %v", err)
	}
	fromPG, err := refdata.NewPGSource(pool).LoadYear(ctx, 2025)
	if err != nil {
		t.Fatalf("LoadYear postgres: %v", err)
	}
	fromCSV, err := src.LoadYear(ctx, 2025)
	if err != nil {
		t.Fatalf("LoadYear csv: %v", err)
	}

	if !fromPG.ConversionFactor.Equal(fromCSV.ConversionFactor) || fromPG.ConversionFactor.String() != "32.346512" {
		t.Errorf("conversion factor = %s, want %s", fromPG.ConversionFactor, fromCSV.ConversionFactor)
	}
	loc, ok := fromPG.Locality("1320201")
	if !ok {
		t.Fatal("locality 1320201 missing")
	}
	if loc.WorkGPCI.String() != "1.0625" || loc.MPGPCI.String() != "1.72031" {
		t.Errorf("gpci work=%s mp=%s, want 1.0625 and 1.72031", loc.WorkGPCI, loc.MPGPCI)
	}
	rec, ok := fromPG.Code("99213", "")
	if !ok {
		t.Fatal("99213 missing")
	}
	if rec.WorkRVU.String() != "1.30005" || rec.MalpracticeRVU.String() != "0.10125" {
		t.Errorf("rvu work=%s mp=%s, want 1.30005 and 0.10125", rec.WorkRVU, rec.MalpracticeRVU)
	}
}
