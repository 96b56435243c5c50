package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/feesched/internal/sql"
)

// Finalize activates the dataset, supersedes the previously active one for
// the year, and runs ANALYZE on the reference tables.
func Finalize(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, datasetID uuid.UUID, year int, codesLoaded int64) (time.Duration, error) {
	start := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("finalize begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, embedsql.SupersedeDatasets, int32(year), datasetID)
	if err != nil {
		return 0, fmt.Errorf("supersede datasets: %w", err)
	}
	log.Info().Int64("superseded", tag.RowsAffected()).Msg("older datasets superseded")

	if _, err := tx.Exec(ctx, embedsql.ActivateDataset, datasetID, codesLoaded); err != nil {
		return 0, fmt.Errorf("activate dataset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("finalize commit: %w", err)
	}
	log.Info().Str("dataset_id", datasetID.String()).Msg("dataset activated")

	if _, err := pool.Exec(ctx, embedsql.AnalyzeReference); err != nil {
		return 0, fmt.Errorf("analyze reference tables: %w", err)
	}
	log.Info().Msg("ANALYZE complete")

	return time.Since(start), nil
}
