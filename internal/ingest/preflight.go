package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
	embedsql "github.com/gyeh/feesched/internal/sql"
)

// FileInfo describes one source file of a dataset.
type FileInfo struct {
	Path   string
	SHA256 string
	Size   int64
}

// Inspection is a parsed and validated reference year, not yet loaded.
type Inspection struct {
	Year int
	// Snapshot is the indexed year; building it checks every ZIP points at a
	// known locality and code rows are unique.
	Snapshot *refdata.Snapshot
	// FilesSHA256 identifies the dataset: a digest over every file's name and
	// content hash (normalize.FilesHash).
	FilesSHA256 string
	Files       []FileInfo
}

// Inspect reads and validates one year from src without touching the
// database. plan reports its result; Preflight builds on it.
func Inspect(ctx context.Context, src *refdata.CSVSource, year int) (*Inspection, error) {
	tables, err := src.ReadTables(ctx, year)
	if err != nil {
		return nil, err
	}
	snap, err := refdata.NewSnapshot(year, tables.ConversionFactor, tables.Codes, tables.Localities, tables.Zips)
	if err != nil {
		return nil, fmt.Errorf("validate %d: %w", year, err)
	}

	files := make([]FileInfo, len(tables.Files))
	for i, path := range tables.Files {
		sha, err := normalize.FileHash(path)
		if err != nil {
			return nil, err
		}
		stat, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		files[i] = FileInfo{Path: path, SHA256: sha, Size: stat.Size()}
	}
	setSHA, err := normalize.FilesHash(tables.Files)
	if err != nil {
		return nil, err
	}

	return &Inspection{Year: year, Snapshot: snap, FilesSHA256: setSHA, Files: files}, nil
}

// PreflightResult holds all context resolved during the preflight phase.
type PreflightResult struct {
	*Inspection
	// DatasetID is a fresh UUID registered in ingest.datasets for this load,
	// or the active dataset's ID when AlreadyLoaded.
	DatasetID uuid.UUID
	// AlreadyLoaded is true when the active dataset for the year has the same
	// files hash and force mode is off, so the pipeline can skip the load.
	AlreadyLoaded bool
}

// Preflight validates the year and registers a new dataset, unless an
// identical dataset is already active.
func Preflight(ctx context.Context, pool *pgxpool.Pool, src *refdata.CSVSource, log zerolog.Logger, year int, force bool) (*PreflightResult, error) {
	start := time.Now()

	insp, err := Inspect(ctx, src, year)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("year", year).
		Str("dir", filepath.Join(src.Dir, fmt.Sprint(year))).
		Str("sha256", insp.FilesSHA256).
		Int("codes", len(insp.Snapshot.Codes())).
		Int("localities", insp.Snapshot.NumLocalities()).
		Int("zips", insp.Snapshot.NumZips()).
		Dur("duration", time.Since(start)).
		Msg("preflight complete")

	var (
		activeID  uuid.UUID
		activeSHA string
	)
	err = pool.QueryRow(ctx, embedsql.FindActiveDataset, int32(year)).Scan(&activeID, &activeSHA)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("preflight find active dataset: %w", err)
	case activeSHA == insp.FilesSHA256 && !force:
		return &PreflightResult{Inspection: insp, DatasetID: activeID, AlreadyLoaded: true}, nil
	}

	id := uuid.New()
	if _, err := pool.Exec(ctx, embedsql.RegisterDataset, id, int32(year), insp.FilesSHA256); err != nil {
		return nil, fmt.Errorf("preflight register dataset: %w", err)
	}
	return &PreflightResult{Inspection: insp, DatasetID: id}, nil
}
