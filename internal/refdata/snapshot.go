package refdata

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gyeh/feesched/internal/model"
)

// Snapshot is the immutable reference data for one year. It is built once by
// a Source and only read afterwards, so it is safe for concurrent use.
type Snapshot struct {
	Year             int
	ConversionFactor decimal.Decimal

	codes      map[string]*model.CodeRecord
	codeList   []model.CodeRecord
	localities map[string]*model.LocalityRecord
	zips       map[string]model.ZipLocality

	stateDefaults map[string]string // state -> locality code
	zip3States    map[string]string // 3-digit ZIP prefix -> state
}

// NewSnapshot indexes the given tables. Every ZIP must point at a known
// locality and (code, modifier) pairs must be unique.
func NewSnapshot(year int, cf decimal.Decimal, codes []model.CodeRecord, localities []model.LocalityRecord, zips []model.ZipLocality) (*Snapshot, error) {
	s := &Snapshot{
		Year:             year,
		ConversionFactor: cf,
		codes:            make(map[string]*model.CodeRecord, len(codes)),
		codeList:         make([]model.CodeRecord, len(codes)),
		localities:       make(map[string]*model.LocalityRecord, len(localities)),
		zips:             make(map[string]model.ZipLocality, len(zips)),
		stateDefaults:    make(map[string]string),
		zip3States:       make(map[string]string),
	}

	copy(s.codeList, codes)
	sort.Slice(s.codeList, func(i, j int) bool {
		if s.codeList[i].Code != s.codeList[j].Code {
			return s.codeList[i].Code < s.codeList[j].Code
		}
		return s.codeList[i].Modifier < s.codeList[j].Modifier
	})
	for i := range s.codeList {
		rec := &s.codeList[i]
		rec.Year = year
		if _, dup := s.codes[rec.Key()]; dup {
			return nil, fmt.Errorf("duplicate code row %s for %d", rec.Key(), year)
		}
		s.codes[rec.Key()] = rec
	}

	for i := range localities {
		loc := localities[i]
		loc.Year = year
		if _, dup := s.localities[loc.Code]; dup {
			return nil, fmt.Errorf("duplicate locality %s for %d", loc.Code, year)
		}
		s.localities[loc.Code] = &loc
	}

	zipCounts := make(map[string]map[string]int)  // state -> locality -> zips
	zip3Counts := make(map[string]map[string]int) // prefix -> state -> zips
	for _, z := range zips {
		if len(z.Zip) != 5 {
			return nil, fmt.Errorf("zip %q is not 5 digits", z.Zip)
		}
		loc, ok := s.localities[z.LocalityCode]
		if !ok {
			return nil, fmt.Errorf("zip %s references unknown locality %s", z.Zip, z.LocalityCode)
		}
		if z.State == "" {
			z.State = loc.State
		}
		if _, dup := s.zips[z.Zip]; dup {
			return nil, fmt.Errorf("duplicate zip %s for %d", z.Zip, year)
		}
		s.zips[z.Zip] = z
		incr(zipCounts, z.State, z.LocalityCode)
		incr(zip3Counts, z.Zip[:3], z.State)
	}

	for prefix, states := range zip3Counts {
		s.zip3States[prefix] = argmax(states)
	}
	s.buildStateDefaults(zipCounts)
	return s, nil
}

// buildStateDefaults picks one locality per state: a locality flagged as the
// state default wins, otherwise the locality covering the most ZIPs, with the
// lowest code breaking ties.
func (s *Snapshot) buildStateDefaults(zipCounts map[string]map[string]int) {
	byState := make(map[string][]string)
	for code, loc := range s.localities {
		if loc.State == "" {
			continue
		}
		if loc.StateDefault {
			if cur, ok := s.stateDefaults[loc.State]; !ok || code < cur {
				s.stateDefaults[loc.State] = code
			}
		}
		byState[loc.State] = append(byState[loc.State], code)
	}
	for state, codes := range byState {
		if _, ok := s.stateDefaults[state]; ok {
			continue
		}
		counts := zipCounts[state]
		if counts == nil {
			counts = make(map[string]int)
		}
		for _, c := range codes {
			if _, ok := counts[c]; !ok {
				counts[c] = 0
			}
		}
		s.stateDefaults[state] = argmax(counts)
	}
}

// Code returns the record for (code, modifier).
func (s *Snapshot) Code(code, modifier string) (*model.CodeRecord, bool) {
	rec, ok := s.codes[model.CodeKey(code, modifier)]
	return rec, ok
}

// Codes returns all code records ordered by code then modifier. The slice is
// shared and must not be modified.
func (s *Snapshot) Codes() []model.CodeRecord {
	return s.codeList
}

// Locality returns the locality with the given code.
func (s *Snapshot) Locality(code string) (*model.LocalityRecord, bool) {
	loc, ok := s.localities[code]
	return loc, ok
}

// NumLocalities returns the number of localities in the year.
func (s *Snapshot) NumLocalities() int {
	return len(s.localities)
}

// Zip returns the exact ZIP-to-locality mapping, if any.
func (s *Snapshot) Zip(zip5 string) (model.ZipLocality, bool) {
	z, ok := s.zips[zip5]
	return z, ok
}

// NumZips returns the number of ZIPs in the index.
func (s *Snapshot) NumZips() int {
	return len(s.zips)
}

// ZipsSorted returns the ZIP index ordered by ZIP, for export and loading.
func (s *Snapshot) ZipsSorted() []model.ZipLocality {
	out := make([]model.ZipLocality, 0, len(s.zips))
	for _, z := range s.zips {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zip < out[j].Zip })
	return out
}

// LocalitiesSorted returns all localities ordered by code.
func (s *Snapshot) LocalitiesSorted() []model.LocalityRecord {
	out := make([]model.LocalityRecord, 0, len(s.localities))
	for _, l := range s.localities {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// StateDefault returns the data-derived default locality code for a state.
func (s *Snapshot) StateDefault(state string) (string, bool) {
	c, ok := s.stateDefaults[state]
	return c, ok
}

// StateForPrefix returns the state most ZIPs with this 3-digit prefix map to.
func (s *Snapshot) StateForPrefix(prefix string) (string, bool) {
	st, ok := s.zip3States[prefix]
	return st, ok
}

func incr(m map[string]map[string]int, outer, inner string) {
	if m[outer] == nil {
		m[outer] = make(map[string]int)
	}
	m[outer][inner]++
}

// argmax returns the key with the highest count, lowest key on ties.
func argmax(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
