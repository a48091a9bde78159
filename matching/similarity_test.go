package matching

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStringSimilarity(t *testing.T) {
	cases := []struct {
		a, b     string
		expected int
	}{
		{"Hex Bolt M8", "Hex Bolt M8", 100},
		{"hexbolt", "Hex Bolt", 100}, // whitespace and case ignored
		{"", "anything", 0},
		{"anything", "", 0},
		{"Bolt", "Bolt M8", 70}, // containment, length ratio 4/6
	}
	for _, tc := range cases {
		if got := StringSimilarity(tc.a, tc.b); got != tc.expected {
			t.Fatalf("StringSimilarity(%q, %q) expected %d, got %d", tc.a, tc.b, tc.expected, got)
		}
	}
}

func TestStringSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"Steel Plate", "Plate Steel"},
		{"Bolt", "Bolt M8"},
		{"Widget", "Gadget"},
		// A repeated token on one side must not earn the shared-token bonus
		// once per occurrence.
		{"wxyz abc abc", "qrst abc"},
	}
	for _, p := range pairs {
		if StringSimilarity(p[0], p[1]) != StringSimilarity(p[1], p[0]) {
			t.Fatalf("StringSimilarity not symmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestItemMatchScore_NameWins(t *testing.T) {
	// An exact name match scores 100 no matter what the spec says.
	if got := ItemMatchScore("Hex Bolt", "Hex Bolt", "completely unrelated"); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestItemMatchScore_SpecOnlyIsDiscounted(t *testing.T) {
	// The OCR text is the spec, not the name: capped at 35 so spec text can
	// never outrank a genuine name match.
	got := ItemMatchScore("M8x30", "Hex Bolt", "M8x30")
	if got != 35 {
		t.Fatalf("expected 35, got %d", got)
	}
}

func TestVendorSimilarity(t *testing.T) {
	cases := []struct {
		a, b     string
		expected int
	}{
		{"Acme Inc.", "Acme", 100},
		{"Acme Co., Ltd.", "Acme Corporation", 100},
		{"Acme", "Acme Industrial", 90}, // containment after stripping
		{"와이지테크", "YG Tech Co., Ltd.", 85},
		{"", "Acme", 0},
	}
	for _, tc := range cases {
		if got := VendorSimilarity(tc.a, tc.b); got != tc.expected {
			t.Fatalf("VendorSimilarity(%q, %q) expected %d, got %d", tc.a, tc.b, tc.expected, got)
		}
	}
}

func TestVendorSimilarity_SuffixStripKeepsInnerLetters(t *testing.T) {
	// "Conveyor" contains "co"; token-level stripping must not mangle it.
	if got := VendorSimilarity("Conveyor Systems", "Conveyor Systems Ltd."); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestQuantityBonus(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	cases := []struct {
		ocr, sys string
		expected int
	}{
		{"100", "100", 20},
		{"60", "100", 10}, // partial delivery
		{"120", "100", 0},
		{"0", "0", 0},
	}
	for _, tc := range cases {
		if got := QuantityBonus(d(tc.ocr), d(tc.sys)); got != tc.expected {
			t.Fatalf("QuantityBonus(%s, %s) expected %d, got %d", tc.ocr, tc.sys, tc.expected, got)
		}
	}
}

func TestCandidateScore_Capped(t *testing.T) {
	d := decimal.NewFromInt(10)
	if got := CandidateScore("Hex Bolt", d, "Hex Bolt", "", d); got != 100 {
		t.Fatalf("expected cap at 100, got %d", got)
	}
}
