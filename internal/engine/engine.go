// Package engine wires the reference store, locality resolver, pricing
// service, code search and contract analyzer into one handle shared by the
// CLI and the HTTP server.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/analysis"
	"github.com/gyeh/feesched/internal/config"
	"github.com/gyeh/feesched/internal/contractfile"
	"github.com/gyeh/feesched/internal/db"
	"github.com/gyeh/feesched/internal/locality"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
	"github.com/gyeh/feesched/internal/refdata"
	"github.com/gyeh/feesched/internal/search"
)

// Engine is the composition root. All methods are safe for concurrent use.
type Engine struct {
	store    *refdata.Store
	pricing  *pricing.Service
	searcher *search.Searcher
	analyzer *analysis.Analyzer

	defaultYear int
	pool        *pgxpool.Pool
	log         zerolog.Logger
}

// Open builds the reference source named by cfg.Source and an Engine over
// it. Close releases the database pool, if any.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	var (
		src  refdata.Source
		pool *pgxpool.Pool
	)
	switch cfg.Source {
	case config.SourcePostgres:
		p, err := db.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		pool = p
		src = refdata.NewPGSource(p)
	default:
		src = refdata.NewCSVSource(cfg.DataDir)
	}

	e, err := New(src, cfg, log)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	e.pool = pool
	return e, nil
}

// New builds an Engine over src.
func New(src refdata.Source, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	store := refdata.NewStore(src, log)
	resolver := locality.NewResolver(store, locality.Policy{
		NationalDefault: cfg.NationalDefaultLocality,
		StateDefaults:   cfg.StateDefaultLocalities,
	}, log)
	svc, err := pricing.NewService(store, resolver, cfg.QuoteCacheSize, log)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:    store,
		pricing:  svc,
		searcher: search.New(store),
		analyzer: analysis.New(svc, resolver, analysis.Options{
			RedFlagThreshold: cfg.Threshold(),
			MaxWorkers:       cfg.MaxWorkers,
		}, log),
		defaultYear: cfg.DefaultYear,
		log:         log.With().Str("component", "engine").Logger(),
	}, nil
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// Years lists the supported reference years in ascending order.
func (e *Engine) Years(ctx context.Context) ([]int, error) {
	return e.store.Years(ctx)
}

// Year returns year, or the default year when year is zero: the configured
// default_year if set, otherwise the latest supported year.
func (e *Engine) Year(ctx context.Context, year int) (int, error) {
	if year != 0 {
		return year, nil
	}
	if e.defaultYear != 0 {
		return e.defaultYear, nil
	}
	years, err := e.store.Years(ctx)
	if err != nil {
		return 0, fmt.Errorf("list years: %w", err)
	}
	if len(years) == 0 {
		return 0, model.Errorf(model.KindUnsupportedYear, "no reference years are loaded")
	}
	return years[len(years)-1], nil
}

// Warm loads the given years, or the default year if none are given, so the
// first request does not pay for the load.
func (e *Engine) Warm(ctx context.Context, years ...int) error {
	if len(years) == 0 {
		y, err := e.Year(ctx, 0)
		if err != nil {
			return err
		}
		years = []int{y}
	}
	start := time.Now()
	if err := e.store.Preload(ctx, years...); err != nil {
		return err
	}
	e.log.Info().Ints("years", years).Dur("duration", time.Since(start)).Msg("reference data warm")
	return nil
}

// Quote prices one code.
func (e *Engine) Quote(ctx context.Context, req pricing.QuoteRequest) (model.PriceQuote, error) {
	year, err := e.Year(ctx, req.Year)
	if err != nil {
		return model.PriceQuote{}, err
	}
	req.Year = year
	return e.pricing.Quote(ctx, req)
}

// Search runs a code search. limit <= 0 means search.DefaultLimit.
func (e *Engine) Search(ctx context.Context, query string, year, limit int) ([]search.Result, error) {
	year, err := e.Year(ctx, year)
	if err != nil {
		return nil, err
	}
	return e.searcher.Search(ctx, query, year, limit)
}

// Analyze evaluates a structured batch.
func (e *Engine) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	year, err := e.Year(ctx, req.Year)
	if err != nil {
		return nil, err
	}
	req.Year = year
	return e.analyzer.Analyze(ctx, req)
}

// AnalyzeFile parses an uploaded rate sheet and analyzes its lines with the
// locality, year and setting from req. req.Lines is ignored.
func (e *Engine) AnalyzeFile(ctx context.Context, r io.Reader, format contractfile.Format, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	lines, err := contractfile.Parse(r, format)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, model.Errorf(model.KindInvalidInput, "file has no data rows")
	}
	bad := 0
	for i := range lines {
		if lines[i].Err != nil {
			bad++
		}
	}
	if bad > 0 {
		e.log.Info().Int("rows", len(lines)).Int("row_errors", bad).Msg("rate sheet parsed with row errors")
	}
	req.Lines = lines
	return e.Analyze(ctx, req)
}
