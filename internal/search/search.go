// Package search is a deterministic lexical search over a year's code table.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// MatchType says which rule matched a result.
type MatchType string

const (
	MatchCode        MatchType = "code"
	MatchPrefix      MatchType = "prefix"
	MatchDescription MatchType = "description"
)

// Result is a code table row summary.
type Result struct {
	Code         string    `json:"code"`
	Modifier     string    `json:"modifier,omitempty"`
	Description  string    `json:"description"`
	CodeSystem   string    `json:"code_system,omitempty"`
	StatusCode   string    `json:"status_code"`
	GlobalPeriod string    `json:"global_period"`
	Year         int       `json:"year"`
	Match        MatchType `json:"match"`
}

// Searcher answers code searches against the reference store.
type Searcher struct {
	store *refdata.Store

	mu      sync.Mutex
	indexes map[*refdata.Snapshot][]entry
}

type entry struct {
	rec  *model.CodeRecord
	key  string
	text string
}

// New creates a Searcher.
func New(store *refdata.Store) *Searcher {
	return &Searcher{store: store, indexes: make(map[*refdata.Snapshot][]entry)}
}

type hit struct {
	e    *entry
	rank int
	pos  int
}

// Search returns up to limit rows matching query in year. Exact code
// matches rank first, then code prefix matches, then description matches
// ordered by match position and description.
func (s *Searcher) Search(ctx context.Context, query string, year, limit int) ([]Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, model.Errorf(model.KindInvalidInput, "query is required")
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	snap, err := s.store.Get(ctx, year)
	if err != nil {
		return nil, err
	}
	idx := s.index(snap)

	upper := strings.ToUpper(q)
	text := normalize.Text(q)
	tokens := normalize.Tokens(q)

	var hits []hit
	for i := range idx {
		e := &idx[i]
		switch {
		case e.rec.Code == upper || e.key == upper:
			hits = append(hits, hit{e: e, rank: 0})
		case strings.HasPrefix(e.key, upper):
			hits = append(hits, hit{e: e, rank: 1})
		default:
			if pos := matchText(e.text, text, tokens); pos >= 0 {
				hits = append(hits, hit{e: e, rank: 2, pos: pos})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.rank == 2 {
			if a.pos != b.pos {
				return a.pos < b.pos
			}
			if a.e.text != b.e.text {
				return a.e.text < b.e.text
			}
		}
		return a.e.key < b.e.key
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		rec := h.e.rec
		out[i] = Result{
			Code:         rec.Code,
			Modifier:     rec.Modifier,
			Description:  rec.Description,
			CodeSystem:   model.CodeSystemOf(rec.Code),
			StatusCode:   rec.StatusCode,
			GlobalPeriod: rec.GlobalPeriod,
			Year:         year,
			Match:        []MatchType{MatchCode, MatchPrefix, MatchDescription}[h.rank],
		}
	}
	return out, nil
}

// matchText returns the position of the whole query in text, or failing
// that the position of the first token when every token occurs. -1 means no
// match.
func matchText(text, query string, tokens []string) int {
	if query == "" {
		return -1
	}
	if pos := strings.Index(text, query); pos >= 0 {
		return pos
	}
	if len(tokens) < 2 {
		return -1
	}
	first := -1
	for _, tok := range tokens {
		pos := strings.Index(text, tok)
		if pos < 0 {
			return -1
		}
		if first < 0 || pos < first {
			first = pos
		}
	}
	return first
}

func (s *Searcher) index(snap *refdata.Snapshot) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[snap]; ok {
		return idx
	}
	codes := snap.Codes()
	idx := make([]entry, len(codes))
	for i := range codes {
		idx[i] = entry{rec: &codes[i], key: codes[i].Key(), text: normalize.Text(codes[i].Description)}
	}
	s.indexes[snap] = idx
	return idx
}
