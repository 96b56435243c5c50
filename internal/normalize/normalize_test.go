package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCode(t *testing.T) {
	cases := map[string]string{
		" 99213 ": "99213",
		"g0439":   "G0439",
		"992-13":  "99213",
		"":        "",
		"  ":      "",
	}
	for in, want := range cases {
		if got := Code(in); got != want {
			t.Errorf("Code(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCodeAndModifier(t *testing.T) {
	tests := []struct {
		code, mod         string
		wantCode, wantMod string
	}{
		{"99213", "", "99213", ""},
		{"71046-26", "", "71046", "26"},
		{"71046 tc", "", "71046", "TC"},
		{"71046-26", "TC", "71046", "TC"},
		{" 99214 ", " 25 ", "99214", "25"},
	}
	for _, tt := range tests {
		c, m := CodeAndModifier(tt.code, tt.mod)
		if c != tt.wantCode || m != tt.wantMod {
			t.Errorf("CodeAndModifier(%q, %q) = (%q, %q), want (%q, %q)",
				tt.code, tt.mod, c, m, tt.wantCode, tt.wantMod)
		}
	}
}

func TestZIP(t *testing.T) {
	valid := map[string]string{
		"10001":      "10001",
		" 10001 ":    "10001",
		"10001-1234": "10001",
		"100011234":  "10001",
		"00501":      "00501",
	}
	for in, want := range valid {
		got, err := ZIP(in)
		if err != nil {
			t.Errorf("ZIP(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ZIP(%q) = %q, want %q", in, got, want)
		}
	}
	for _, in := range []string{"", "1000", "100012", "ABCDE", "10001-12", "1000A"} {
		if _, err := ZIP(in); err == nil {
			t.Errorf("ZIP(%q): expected error", in)
		}
	}
}

func TestAmount(t *testing.T) {
	cases := map[string]string{
		"75":        "75",
		"$75.00":    "75",
		"$1,234.50": "1234.5",
		" 12.345 ":  "12.345",
		"(10.00)":   "-10",
		"-$5":       "-5",
	}
	for in, want := range cases {
		got, err := Amount(in)
		if err != nil {
			t.Errorf("Amount(%q): %v", in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("Amount(%q) = %s, want %s", in, got, want)
		}
	}
	for _, in := range []string{"", "abc", "$", "12..5"} {
		if _, err := Amount(in); err == nil {
			t.Errorf("Amount(%q): expected error", in)
		}
	}
}

func TestCount(t *testing.T) {
	if n, err := Count("1,200"); err != nil || n != 1200 {
		t.Errorf("Count(1,200) = %d, %v", n, err)
	}
	if n, err := Count("12.0"); err != nil || n != 12 {
		t.Errorf("Count(12.0) = %d, %v", n, err)
	}
	for _, in := range []string{"1.5", "-3", "many"} {
		if _, err := Count(in); err == nil {
			t.Errorf("Count(%q): expected error", in)
		}
	}
}

func TestDollarsToCents(t *testing.T) {
	if DollarsToCents(nil) != nil {
		t.Error("nil should stay nil")
	}
	d := decimal.RequireFromString("105.445")
	if got := *DollarsToCents(&d); got != 10545 {
		t.Errorf("DollarsToCents(105.445) = %d, want 10545", got)
	}
	n := decimal.RequireFromString("-29.885")
	if got := *DollarsToCents(&n); got != -2989 {
		t.Errorf("DollarsToCents(-29.885) = %d, want -2989", got)
	}
}

func TestPercentToBasisPoints(t *testing.T) {
	p := decimal.RequireFromString("-28.87")
	if got := *PercentToBasisPoints(&p); got != -2887 {
		t.Errorf("PercentToBasisPoints(-28.87) = %d, want -2887", got)
	}
	if PercentToBasisPoints(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestText(t *testing.T) {
	if got := Text("  Office   VISIT\tEst "); got != "office visit est" {
		t.Errorf("Text = %q", got)
	}
	toks := Tokens("Office/outpatient visit, est")
	want := []string{"office", "outpatient", "visit", "est"}
	if len(toks) != len(want) {
		t.Fatalf("Tokens = %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("Tokens[%d] = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestFilesHash_OrderIndependent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	os.WriteFile(a, []byte("x\n"), 0644)
	os.WriteFile(b, []byte("y\n"), 0644)

	h1, err := FilesHash([]string{a, b})
	if err != nil {
		t.Fatalf("FilesHash: %v", err)
	}
	h2, err := FilesHash([]string{b, a})
	if err != nil {
		t.Fatalf("FilesHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash depends on order: %s vs %s", h1, h2)
	}

	os.WriteFile(b, []byte("z\n"), 0644)
	h3, _ := FilesHash([]string{a, b})
	if h3 == h1 {
		t.Error("hash did not change with content")
	}
}
