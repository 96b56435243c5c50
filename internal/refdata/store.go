package refdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
)

// Store hands out one Snapshot per year, loading each year at most once.
// Reads after the load take no locks on the snapshot itself; the mutex only
// guards the year map.
type Store struct {
	src Source
	log zerolog.Logger

	mu    sync.Mutex
	years map[int]*yearEntry
}

type yearEntry struct {
	once sync.Once
	snap *Snapshot
	err  error
}

// NewStore creates a Store backed by src.
func NewStore(src Source, log zerolog.Logger) *Store {
	return &Store{
		src:   src,
		log:   log.With().Str("component", "refdata").Logger(),
		years: make(map[int]*yearEntry),
	}
}

// Get returns the snapshot for year, loading it on first use. Unsupported
// years are remembered; other load failures are not, so a later call retries.
func (s *Store) Get(ctx context.Context, year int) (*Snapshot, error) {
	s.mu.Lock()
	e, ok := s.years[year]
	if !ok {
		e = &yearEntry{}
		s.years[year] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		start := time.Now()
		e.snap, e.err = s.src.LoadYear(ctx, year)
		if e.err != nil {
			s.log.Warn().Err(e.err).Int("year", year).Msg("reference year load failed")
			return
		}
		s.log.Info().
			Int("year", year).
			Int("codes", len(e.snap.Codes())).
			Int("localities", e.snap.NumLocalities()).
			Int("zips", e.snap.NumZips()).
			Str("conversion_factor", e.snap.ConversionFactor.String()).
			Dur("duration", time.Since(start)).
			Msg("reference year loaded")
	})

	if e.err != nil && !errors.Is(e.err, model.ErrUnsupportedYear) {
		s.mu.Lock()
		if s.years[year] == e {
			delete(s.years, year)
		}
		s.mu.Unlock()
	}
	return e.snap, e.err
}

// Preload loads the given years eagerly, stopping at the first failure.
func (s *Store) Preload(ctx context.Context, years ...int) error {
	for _, y := range years {
		if _, err := s.Get(ctx, y); err != nil {
			return err
		}
	}
	return nil
}

// Years lists the years the underlying source can serve.
func (s *Store) Years(ctx context.Context) ([]int, error) {
	return s.src.Years(ctx)
}

// CodeRecord looks up (code, modifier) for year.
func (s *Store) CodeRecord(ctx context.Context, code, modifier string, year int) (model.CodeRecord, error) {
	snap, err := s.Get(ctx, year)
	if err != nil {
		return model.CodeRecord{}, err
	}
	rec, ok := snap.Code(code, modifier)
	if !ok {
		return model.CodeRecord{}, model.Errorf(model.KindCodeNotFound, "code %s not in %d fee schedule", model.CodeKey(code, modifier), year)
	}
	return *rec, nil
}

// LocalityRecord looks up a locality by code for year.
func (s *Store) LocalityRecord(ctx context.Context, localityCode string, year int) (model.LocalityRecord, error) {
	snap, err := s.Get(ctx, year)
	if err != nil {
		return model.LocalityRecord{}, err
	}
	loc, ok := snap.Locality(localityCode)
	if !ok {
		return model.LocalityRecord{}, model.Errorf(model.KindLocalityNotFound, "locality %s not in %d locality table", localityCode, year)
	}
	return *loc, nil
}

// ConversionFactor returns the conversion factor for year.
func (s *Store) ConversionFactor(ctx context.Context, year int) (decimal.Decimal, error) {
	snap, err := s.Get(ctx, year)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.ConversionFactor, nil
}

func unsupportedYear(year int) error {
	return model.Errorf(model.KindUnsupportedYear, "no reference data for year %d", year)
}
