package search

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/normalize"
	"github.com/gyeh/feesched/internal/refdata"
)

func newTestSearcher() *Searcher {
	return New(refdata.NewStore(refdata.NewCSVSource("../../testdata/refdata"), zerolog.Nop()))
}

func keys(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = model.CodeKey(r.Code, r.Modifier)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch(t *testing.T) {
	s := newTestSearcher()
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"exact code", "99213", 0, []string{"99213"}},
		{"exact code with modifiers", "71046", 0, []string{"71046", "71046-26", "71046-TC"}},
		{"exact key", "71046-tc", 0, []string{"71046-TC"}},
		{"prefix", "9921", 0, []string{"99212", "99213", "99214"}},
		{"hcpcs case-insensitive", "g04", 0, []string{"G0439"}},
		{"description position then alpha", "visit", 0, []string{"G0439", "99213", "99214", "99212", "99203", "99204"}},
		{"tokens in any order", "chest x-ray", 0, []string{"71046", "71046-26", "71046-TC"}},
		{"substring", "venipuncture", 0, []string{"36415"}},
		{"limit", "visit", 2, []string{"G0439", "99213"}},
		{"no match", "appendectomy", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query, 2025, tt.limit)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if !equal(keys(got), tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, keys(got), tt.want)
			}
		})
	}
}

func TestSearchRankOrder(t *testing.T) {
	s := newTestSearcher()
	// "99" is a prefix for every CPT E/M code, and no description contains it.
	got, err := s.Search(context.Background(), "99", 2025, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range got {
		if r.Match != MatchPrefix {
			t.Errorf("%s match = %s, want prefix", r.Code, r.Match)
		}
		if r.CodeSystem != "CPT" {
			t.Errorf("%s code system = %s", r.Code, r.CodeSystem)
		}
	}

	got, err = s.Search(context.Background(), "99213", 2025, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Match != MatchCode || got[0].Year != 2025 {
		t.Errorf("exact match result = %+v", got)
	}
}

func TestSearchErrors(t *testing.T) {
	s := newTestSearcher()
	if _, err := s.Search(context.Background(), "   ", 2025, 10); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("empty query err = %v", err)
	}
	if _, err := s.Search(context.Background(), "99213", 2019, 10); !errors.Is(err, model.ErrUnsupportedYear) {
		t.Errorf("unsupported year err = %v", err)
	}
}

func TestMatchText(t *testing.T) {
	text := "x-ray of chest, 2 views"
	tests := []struct {
		query string
		want  int
	}{
		{"chest", 9},
		{"x-ray of", 0},
		{"views chest", 9},
		{"views abdomen", -1},
		{"", -1},
	}
	for _, tt := range tests {
		q := tt.query
		got := matchText(text, q, normalize.Tokens(q))
		if got != tt.want {
			t.Errorf("matchText(%q) = %d, want %d", q, got, tt.want)
		}
	}
}
