package pricing

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/locality"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
)

// Professional and technical component modifiers carry their own RVUs and
// never fall back to the global row.
var componentModifiers = map[string]bool{"26": true, "TC": true}

// QuoteRequest is a price lookup by ZIP or explicit locality.
type QuoteRequest struct {
	Code         string
	Modifier     string
	Zip          string
	LocalityCode string
	Year         int
	Setting      model.Setting
}

type quoteKey struct {
	code, modifier, locality string
	year                     int
	setting                  model.Setting
}

// Service prices codes against the reference store. Quotes are cached by the
// full input tuple; reference years are immutable once loaded.
type Service struct {
	store    *refdata.Store
	resolver *locality.Resolver
	cache    *lru.Cache[quoteKey, model.PriceQuote]
	log      zerolog.Logger
}

// NewService creates a Service. cacheSize <= 0 disables the quote cache.
func NewService(store *refdata.Store, resolver *locality.Resolver, cacheSize int, log zerolog.Logger) (*Service, error) {
	s := &Service{
		store:    store,
		resolver: resolver,
		log:      log.With().Str("component", "pricing").Logger(),
	}
	if cacheSize > 0 {
		c, err := lru.New[quoteKey, model.PriceQuote](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create quote cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

// Quote resolves the request's locality and prices the code there.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (model.PriceQuote, error) {
	if req.Year <= 0 {
		return model.PriceQuote{}, model.Errorf(model.KindInvalidInput, "year is required")
	}
	res, err := s.resolver.ResolveInput(ctx, req.Zip, req.LocalityCode, req.Year)
	if err != nil {
		return model.PriceQuote{}, err
	}
	return s.Price(ctx, req.Code, req.Modifier, res, req.Year, req.Setting)
}

// Price prices (code, modifier) at an already resolved locality.
func (s *Service) Price(ctx context.Context, code, modifier string, res model.LocalityResolution, year int, setting model.Setting) (model.PriceQuote, error) {
	code, modifier = normalize.CodeAndModifier(code, modifier)
	if code == "" {
		return model.PriceQuote{}, model.Errorf(model.KindInvalidInput, "code is required")
	}
	if setting == "" {
		setting = model.SettingNonFacility
	}

	key := quoteKey{code: code, modifier: modifier, locality: res.Locality.Code, year: year, setting: setting}
	if s.cache != nil {
		if q, ok := s.cache.Get(key); ok {
			q.Resolution = res
			return q, nil
		}
	}

	snap, err := s.store.Get(ctx, year)
	if err != nil {
		return model.PriceQuote{}, err
	}
	rec, applied, err := lookup(snap, code, modifier)
	if err != nil {
		return model.PriceQuote{}, err
	}

	if modifier != "" && !applied {
		s.log.Debug().Str("code", code).Str("modifier", modifier).Int("year", year).
			Msg("no modifier row, priced global row")
	}

	r := Calculate(rec, &res.Locality, snap.ConversionFactor, setting)
	q := model.PriceQuote{
		Code:             rec.Code,
		Modifier:         modifier,
		ModifierApplied:  applied,
		Description:      rec.Description,
		CodeSystem:       model.CodeSystemOf(rec.Code),
		StatusCode:       rec.StatusCode,
		GlobalPeriod:     rec.GlobalPeriod,
		Year:             year,
		Setting:          setting,
		Locality:         res.Locality,
		ConversionFactor: snap.ConversionFactor,
		Price:            r.Price,
		NationalPrice:    r.NationalPrice,
		Components:       r.Components,
	}
	if s.cache != nil {
		s.cache.Add(key, q)
	}
	q.Resolution = res
	return q, nil
}

// ConversionFactor returns the conversion factor for year.
func (s *Service) ConversionFactor(ctx context.Context, year int) (decimal.Decimal, error) {
	return s.store.ConversionFactor(ctx, year)
}

// CacheLen reports the number of cached quotes.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// lookup finds the row for (code, modifier), falling back to the global row
// for non-component modifiers. applied reports whether the modifier had a
// row of its own.
func lookup(snap *refdata.Snapshot, code, modifier string) (*model.CodeRecord, bool, error) {
	if rec, ok := snap.Code(code, modifier); ok {
		return rec, modifier != "", nil
	}
	if modifier != "" && !componentModifiers[modifier] {
		if rec, ok := snap.Code(code, ""); ok {
			return rec, false, nil
		}
	}
	return nil, false, model.Errorf(model.KindCodeNotFound, "code %s not in %d fee schedule",
		model.CodeKey(code, modifier), snap.Year)
}
