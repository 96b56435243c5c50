package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/refdata"
)

// Pipeline phases, reported in PipelineError.
const (
	PhasePreflight = "preflight"
	PhaseStage     = "stage"
	PhaseFinalize  = "finalize"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Options selects what Run loads.
type Options struct {
	Year  int
	Force bool // reload even if an identical dataset is active
}

// Run loads one reference year from src into Postgres:
// preflight → stage → finalize.
func Run(ctx context.Context, pool *pgxpool.Pool, src *refdata.CSVSource, log zerolog.Logger, opts Options) (*model.LoadSummary, error) {
	totalStart := time.Now()
	log = log.With().Str("component", "ingest").Int("year", opts.Year).Logger()

	// Phase 1: Preflight
	log.Info().Str("dir", src.Dir).Msg("starting preflight")
	pf, err := Preflight(ctx, pool, src, log, opts.Year, opts.Force)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePreflight, Err: err}
	}
	preflightDur := time.Since(totalStart)

	if pf.AlreadyLoaded {
		log.Info().
			Str("dataset_id", pf.DatasetID.String()).
			Str("sha256", pf.FilesSHA256).
			Msg("dataset already active, skipping (use --force to reload)")
		return &model.LoadSummary{
			Year:              opts.Year,
			DatasetID:         pf.DatasetID.String(),
			FilesSHA256:       pf.FilesSHA256,
			AlreadyLoaded:     true,
			DurationPreflight: preflightDur,
			DurationTotal:     time.Since(totalStart),
		}, nil
	}

	// Phase 2: Stage
	log.Info().Str("dataset_id", pf.DatasetID.String()).Msg("starting staging")
	stageResult, err := Stage(ctx, pool, log, pf)
	if err != nil {
		if ferr := MarkFailed(context.WithoutCancel(ctx), pool, pf.DatasetID); ferr != nil {
			log.Warn().Err(ferr).Msg("could not mark dataset failed")
		}
		return nil, &PipelineError{Phase: PhaseStage, Err: err}
	}

	// Phase 3: Finalize
	log.Info().Msg("finalizing")
	finalizeDur, err := Finalize(ctx, pool, log, pf.DatasetID, opts.Year, stageResult.CodesLoaded)
	if err != nil {
		if ferr := MarkFailed(context.WithoutCancel(ctx), pool, pf.DatasetID); ferr != nil {
			log.Warn().Err(ferr).Msg("could not mark dataset failed")
		}
		return nil, &PipelineError{Phase: PhaseFinalize, Err: err}
	}

	summary := &model.LoadSummary{
		Year:              opts.Year,
		DatasetID:         pf.DatasetID.String(),
		FilesSHA256:       pf.FilesSHA256,
		CodesLoaded:       stageResult.CodesLoaded,
		LocalitiesLoaded:  stageResult.LocalitiesLoaded,
		ZipsLoaded:        stageResult.ZipsLoaded,
		DurationPreflight: preflightDur,
		DurationStage:     stageResult.Duration,
		DurationFinalize:  finalizeDur,
		DurationTotal:     time.Since(totalStart),
	}

	log.Info().
		Int64("codes", summary.CodesLoaded).
		Int64("localities", summary.LocalitiesLoaded).
		Int64("zips", summary.ZipsLoaded).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("load pipeline complete")

	return summary, nil
}
