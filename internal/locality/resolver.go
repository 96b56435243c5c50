package locality

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
)

// NationalCode is the code of the synthesized national locality used when no
// configured national default exists in the year's data.
const NationalCode = "NATIONAL"

// Policy configures fallback when a ZIP is not in the index.
type Policy struct {
	// NationalDefault is a locality code used when the state cannot be
	// determined. Empty, or absent from the year's data, means a synthesized
	// locality with all GPCIs at 1.0.
	NationalDefault string
	// StateDefaults overrides the data-derived default locality per state.
	StateDefaults map[string]string
}

// Resolver maps ZIP codes and explicit locality codes to locality records.
type Resolver struct {
	store  *refdata.Store
	policy Policy
	log    zerolog.Logger
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store *refdata.Store, policy Policy, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		policy: policy,
		log:    log.With().Str("component", "locality").Logger(),
	}
}

// Resolve returns the locality for zip in year. A syntactically valid ZIP
// always resolves; Fallback reports whether the exact index was missed.
func (r *Resolver) Resolve(ctx context.Context, zip string, year int) (model.LocalityResolution, error) {
	zip5, err := normalize.ZIP(zip)
	if err != nil {
		return model.LocalityResolution{}, &model.Error{
			Kind:    model.KindLocalityUnresolvable,
			Message: "invalid zip",
			Err:     err,
		}
	}

	snap, err := r.store.Get(ctx, year)
	if err != nil {
		return model.LocalityResolution{}, err
	}

	if z, ok := snap.Zip(zip5); ok {
		if loc, ok := snap.Locality(z.LocalityCode); ok {
			return model.LocalityResolution{
				Locality: *loc,
				Zip:      zip5,
				State:    z.State,
				Method:   model.ResolvedExact,
			}, nil
		}
	}

	state := stateFor(snap, zip5)
	if state != "" {
		if loc, ok := r.stateDefault(snap, state); ok {
			r.log.Debug().Str("zip", zip5).Str("state", state).Str("locality", loc.Code).Int("year", year).
				Msg("zip not indexed, using state default")
			return model.LocalityResolution{
				Locality: *loc,
				Zip:      zip5,
				State:    state,
				Method:   model.ResolvedStateDefault,
				Fallback: true,
			}, nil
		}
	}

	loc := r.national(snap)
	r.log.Debug().Str("zip", zip5).Str("locality", loc.Code).Int("year", year).
		Msg("zip not indexed, using national default")
	return model.LocalityResolution{
		Locality: loc,
		Zip:      zip5,
		State:    state,
		Method:   model.ResolvedNationalDefault,
		Fallback: true,
	}, nil
}

// ResolveCode returns an explicitly requested locality.
func (r *Resolver) ResolveCode(ctx context.Context, code string, year int) (model.LocalityResolution, error) {
	snap, err := r.store.Get(ctx, year)
	if err != nil {
		return model.LocalityResolution{}, err
	}
	if code == NationalCode {
		loc := r.national(snap)
		return model.LocalityResolution{Locality: loc, Method: model.ResolvedExplicit}, nil
	}
	loc, ok := snap.Locality(code)
	if !ok {
		return model.LocalityResolution{}, model.Errorf(model.KindLocalityNotFound,
			"locality %s not in %d locality table", code, year)
	}
	return model.LocalityResolution{Locality: *loc, State: loc.State, Method: model.ResolvedExplicit}, nil
}

// ResolveInput resolves whichever of localityCode or zip the caller supplied.
// An explicit locality code takes precedence.
func (r *Resolver) ResolveInput(ctx context.Context, zip, localityCode string, year int) (model.LocalityResolution, error) {
	switch {
	case localityCode != "":
		return r.ResolveCode(ctx, localityCode, year)
	case zip != "":
		return r.Resolve(ctx, zip, year)
	}
	return model.LocalityResolution{}, model.Errorf(model.KindInvalidInput, "zip or locality_code is required")
}

func (r *Resolver) stateDefault(snap *refdata.Snapshot, state string) (*model.LocalityRecord, bool) {
	if code, ok := r.policy.StateDefaults[state]; ok {
		if loc, ok := snap.Locality(code); ok {
			return loc, true
		}
	}
	code, ok := snap.StateDefault(state)
	if !ok {
		return nil, false
	}
	return snap.Locality(code)
}

func (r *Resolver) national(snap *refdata.Snapshot) model.LocalityRecord {
	if r.policy.NationalDefault != "" {
		if loc, ok := snap.Locality(r.policy.NationalDefault); ok {
			return *loc
		}
	}
	one := decimal.NewFromInt(1)
	return model.LocalityRecord{
		Code:     NationalCode,
		Year:     snap.Year,
		Name:     "NATIONAL (GPCI 1.0)",
		WorkGPCI: one,
		PEGPCI:   one,
		MPGPCI:   one,
	}
}

// stateFor determines the state of an unindexed ZIP, preferring the prefix
// mapping observed in the year's own data.
func stateFor(snap *refdata.Snapshot, zip5 string) string {
	prefix := zip5[:3]
	if st, ok := snap.StateForPrefix(prefix); ok {
		return st
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return ""
	}
	st, _ := stateForZip3(n)
	return st
}
