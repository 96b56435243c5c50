// Package analysis compares contracted rates against fee schedule benchmarks.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/feesched/internal/locality"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
)

// DefaultMaxWorkers caps per-batch fan-out.
const DefaultMaxWorkers = 32

// PercentPlaces is the precision of variance percentages.
const PercentPlaces = 2

var hundred = decimal.NewFromInt(100)

// Options tunes an Analyzer.
type Options struct {
	RedFlagThreshold decimal.Decimal
	MaxWorkers       int
}

// DefaultOptions returns a -10% red-flag threshold and DefaultMaxWorkers.
func DefaultOptions() Options {
	return Options{RedFlagThreshold: model.DefaultRedFlagThreshold, MaxWorkers: DefaultMaxWorkers}
}

// Analyzer evaluates batches of contract lines.
type Analyzer struct {
	pricing  *pricing.Service
	resolver *locality.Resolver
	opts     Options
	log      zerolog.Logger
}

// New creates an Analyzer.
func New(svc *pricing.Service, resolver *locality.Resolver, opts Options, log zerolog.Logger) *Analyzer {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	return &Analyzer{
		pricing:  svc,
		resolver: resolver,
		opts:     opts,
		log:      log.With().Str("component", "analysis").Logger(),
	}
}

// Threshold returns the configured red-flag threshold.
func (a *Analyzer) Threshold() decimal.Decimal {
	return a.opts.RedFlagThreshold
}

// Analyze prices every line against the request's locality. Only a
// structurally invalid request fails; per-line problems are reported on the
// line and excluded from the aggregates.
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	start := time.Now()

	if len(req.Lines) == 0 {
		return nil, model.Errorf(model.KindInvalidInput, "at least one line is required")
	}
	if req.Year <= 0 {
		return nil, model.Errorf(model.KindInvalidInput, "year is required")
	}
	setting, err := model.ParseSetting(string(req.Setting))
	if err != nil {
		return nil, err
	}
	res, err := a.resolver.ResolveInput(ctx, req.Zip, req.LocalityCode, req.Year)
	if err != nil {
		return nil, err
	}

	items := make([]model.AnalysisLineItem, len(req.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(req.Lines), a.opts.MaxWorkers))
	for i := range req.Lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = a.evaluate(gctx, i, &req.Lines[i], res, req.Year, setting)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := Aggregate(items, a.opts.RedFlagThreshold)
	result.AnalysisID = uuid.NewString()
	result.GeneratedAt = time.Now().UTC()
	result.Year = req.Year
	result.Setting = setting
	result.Resolution = res
	if result.ConversionFactor, err = a.pricing.ConversionFactor(ctx, req.Year); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("analysis_id", result.AnalysisID).
		Int("lines", result.TotalCodes).
		Int("matched", result.CodesMatched).
		Int("unmatched", result.CodesUnmatched).
		Int("red_flags", len(result.RedFlags)).
		Str("locality", res.Locality.Code).
		Bool("fallback", res.Fallback).
		Dur("duration", time.Since(start)).
		Msg("analysis complete")

	return result, nil
}
