package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/db"
	"github.com/gyeh/feesched/internal/model"
	embedsql "github.com/gyeh/feesched/internal/sql"
)

const copyBufferSize = 1024

// StageResult holds metrics from the staging phase.
type StageResult struct {
	CodesLoaded      int64
	LocalitiesLoaded int64
	ZipsLoaded       int64
	Duration         time.Duration
}

// Stage replaces the year's rows in the ref schema with the inspected
// tables. Delete, conversion factor upsert and the three COPYs share one
// transaction, so readers see either the old year or the new one.
func Stage(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, pf *PreflightResult) (*StageResult, error) {
	start := time.Now()
	snap := pf.Snapshot
	year := int32(pf.Year)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, embedsql.DeleteYear, year); err != nil {
		return nil, fmt.Errorf("stage delete year: %w", err)
	}
	if _, err := tx.Exec(ctx, embedsql.UpsertConversionFactor, year, db.Numeric(snap.ConversionFactor)); err != nil {
		return nil, fmt.Errorf("stage conversion factor: %w", err)
	}

	localities := snap.LocalitiesSorted()
	nLoc, err := copyRows(ctx, tx, "localities", model.LocalityColumns(), len(localities),
		func(i int) *model.LocalityRecord { return &localities[i] })
	if err != nil {
		return nil, err
	}

	codes := snap.Codes()
	nCodes, err := copyRows(ctx, tx, "code_rvus", model.CodeRVUColumns(), len(codes),
		func(i int) *model.CodeRecord { return &codes[i] })
	if err != nil {
		return nil, err
	}

	zips := snap.ZipsSorted()
	nZips, err := copyRows(ctx, tx, "zip_localities", model.ZipLocalityColumns(), len(zips),
		func(i int) *model.YearZip { return &model.YearZip{Year: pf.Year, ZipLocality: zips[i]} })
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("stage commit: %w", err)
	}

	dur := time.Since(start)
	log.Info().
		Int("year", pf.Year).
		Int64("codes", nCodes).
		Int64("localities", nLoc).
		Int64("zips", nZips).
		Str("duration", dur.String()).
		Msg("staging complete")

	return &StageResult{
		CodesLoaded:      nCodes,
		LocalitiesLoaded: nLoc,
		ZipsLoaded:       nZips,
		Duration:         dur,
	}, nil
}

// copyRows streams n rows into ref.<table> through a channel-backed
// CopyFromSource.
func copyRows[T db.CopyRow](ctx context.Context, tx pgx.Tx, table string, cols []string, n int, row func(int) T) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan T, copyBufferSize)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			select {
			case ch <- row(i):
			case <-ctx.Done():
				return
			}
		}
	}()

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"ref", table}, cols, db.NewChannelSource[T](ch))
	if err != nil {
		return 0, fmt.Errorf("stage copy %s: %w", table, err)
	}
	if copied != int64(n) {
		return 0, fmt.Errorf("stage copy %s: copied %d of %d rows", table, copied, n)
	}
	return copied, nil
}

// MarkFailed records that a registered dataset did not load.
func MarkFailed(ctx context.Context, pool *pgxpool.Pool, datasetID uuid.UUID) error {
	_, err := pool.Exec(ctx, embedsql.FailDataset, datasetID)
	return err
}
