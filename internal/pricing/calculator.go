// Package pricing computes fee schedule benchmark prices.
//
//	adjusted = work_rvu*work_gpci + pe_rvu(setting)*pe_gpci + mp_rvu*mp_gpci
//	price    = round(adjusted * conversion_factor, 2)
//
// The national price uses the same formula with every GPCI at 1.0. All
// arithmetic is exact decimal; rounding happens once, on the final product.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
)

// CurrencyPlaces is the precision prices are rounded to.
const CurrencyPlaces = 2

// Result is the output of Calculate.
type Result struct {
	Price         decimal.Decimal
	NationalPrice decimal.Decimal
	Components    model.PriceComponents
}

// Calculate prices rec at loc. It is a pure function of its inputs.
func Calculate(rec *model.CodeRecord, loc *model.LocalityRecord, cf decimal.Decimal, setting model.Setting) Result {
	pe, na := rec.PERVU(setting)

	c := model.PriceComponents{
		WorkRVU:         rec.WorkRVU,
		PERVU:           pe,
		MPRVU:           rec.MalpracticeRVU,
		PENotApplicable: na,
		WorkGPCI:        loc.WorkGPCI,
		PEGPCI:          loc.PEGPCI,
		MPGPCI:          loc.MPGPCI,
		AdjustedWork:    rec.WorkRVU.Mul(loc.WorkGPCI),
		AdjustedPE:      pe.Mul(loc.PEGPCI),
		AdjustedMP:      rec.MalpracticeRVU.Mul(loc.MPGPCI),
	}
	c.AdjustedRVU = c.AdjustedWork.Add(c.AdjustedPE).Add(c.AdjustedMP)
	c.NationalRVU = rec.WorkRVU.Add(pe).Add(rec.MalpracticeRVU)

	return Result{
		Price:         c.AdjustedRVU.Mul(cf).Round(CurrencyPlaces),
		NationalPrice: c.NationalRVU.Mul(cf).Round(CurrencyPlaces),
		Components:    c,
	}
}
