package analysis

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
)

// evaluate prices one line. It never fails; problems are recorded on the item.
func (a *Analyzer) evaluate(ctx context.Context, idx int, line *model.ContractLine, res model.LocalityResolution, year int, setting model.Setting) model.AnalysisLineItem {
	code, modifier := normalize.CodeAndModifier(line.Code, line.Modifier)
	item := model.AnalysisLineItem{
		Line:           idx + 1,
		SourceRow:      line.SourceRow,
		Code:           code,
		Modifier:       modifier,
		ContractedRate: line.ContractedRate,
		Volume:         line.Volume,
	}

	switch {
	case line.Err != nil:
		return withError(item, line.Err.Kind, line.Err.Message)
	case code == "":
		return withError(item, model.KindInvalidInput, "code is required")
	case line.ContractedRate == nil:
		return withError(item, model.KindInvalidInput, "contracted rate is required")
	case line.ContractedRate.IsNegative():
		return withError(item, model.KindInvalidInput, "contracted rate must not be negative")
	case line.Volume != nil && *line.Volume < 0:
		return withError(item, model.KindInvalidInput, "volume must not be negative")
	}

	q, err := a.pricing.Price(ctx, code, modifier, res, year, setting)
	if err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			return withError(item, me.Kind, me.Message)
		}
		return withError(item, model.KindInvalidInput, err.Error())
	}

	benchmark := q.Price
	national := q.NationalPrice
	item.Description = q.Description
	item.BenchmarkRate = &benchmark
	item.NationalRate = &national
	item.Matched = true

	variance := line.ContractedRate.Sub(benchmark)
	item.Variance = &variance
	// The red flag compares the unrounded percentage; only the reported
	// value is rounded.
	var rawPct *decimal.Decimal
	if !benchmark.IsZero() {
		raw := variance.Div(benchmark).Mul(hundred)
		rawPct = &raw
		pct := raw.Round(PercentPlaces)
		item.VariancePct = &pct
	}

	switch variance.Sign() {
	case -1:
		item.Classification = model.ClassBelow
		item.IsBelowMedicare = true
	case 1:
		item.Classification = model.ClassAbove
	default:
		item.Classification = model.ClassEqual
	}

	item.RedFlag = rawPct != nil && rawPct.LessThanOrEqual(a.opts.RedFlagThreshold)

	if line.Volume != nil {
		impact := variance.Mul(decimal.NewFromInt(*line.Volume))
		item.RevenueImpact = &impact
	}
	return item
}

func withError(item model.AnalysisLineItem, kind model.ErrorKind, msg string) model.AnalysisLineItem {
	item.ErrorKind = kind
	item.Error = msg
	return item
}

// Aggregate reduces line items, in order, into a result. Unmatched lines
// count toward TotalCodes and CodesUnmatched only.
func Aggregate(items []model.AnalysisLineItem, threshold decimal.Decimal) *model.AnalysisResult {
	r := &model.AnalysisResult{
		LineItems:          items,
		TotalCodes:         len(items),
		RedFlagThreshold:   threshold,
		TotalVariance:      decimal.Zero,
		TotalRevenueImpact: decimal.Zero,
		TotalContracted:    decimal.Zero,
		TotalBenchmark:     decimal.Zero,
		RedFlags:           []model.AnalysisLineItem{},
	}
	for _, it := range items {
		if !it.Matched {
			r.CodesUnmatched++
			continue
		}
		r.CodesMatched++
		switch it.Classification {
		case model.ClassBelow:
			r.CountBelow++
		case model.ClassAbove:
			r.CountAbove++
		case model.ClassEqual:
			r.CountEqual++
		}
		r.TotalVariance = r.TotalVariance.Add(*it.Variance)
		r.TotalContracted = r.TotalContracted.Add(*it.ContractedRate)
		r.TotalBenchmark = r.TotalBenchmark.Add(*it.BenchmarkRate)
		if it.RevenueImpact != nil {
			r.TotalRevenueImpact = r.TotalRevenueImpact.Add(*it.RevenueImpact)
		}
		if it.RedFlag {
			r.RedFlags = append(r.RedFlags, it)
		}
	}
	return r
}
