package matching

import "testing"

func TestNormalizeOrderNumber_CanonicalForms(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"F20251010_1", "F20251010_001"},
		{"f20251010_001", "F20251010_001"},
		{" HS251201-1 ", "HS251201-01"},
		{"hs251201-1", "HS251201-01"},
		// OCR digit confusions inside the numeric part.
		{"F2025IOIO_001", "F20251010_001"},
		{"HS25120I-01", "HS251201-01"},
		{"F2025101O_0O1", "F20251010_001"},
		// Punctuation and whitespace stripped; separators survive.
		{"F 2025.1010_001", "F20251010_001"},
	}
	for _, tc := range cases {
		got := NormalizeOrderNumber(tc.in)
		if got != tc.expected {
			t.Fatalf("NormalizeOrderNumber(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestNormalizeOrderNumber_Idempotent(t *testing.T) {
	inputs := []string{"F20251010_1", "HS251201-1", "F2025IOIO_001", "garbled text", ""}
	for _, in := range inputs {
		once := NormalizeOrderNumber(in)
		twice := NormalizeOrderNumber(once)
		if once != twice {
			t.Fatalf("NormalizeOrderNumber not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeOrderNumber_KeepsSeriesPrefix(t *testing.T) {
	// The S in the HS series is a prefix letter, never a mis-read 5.
	got := NormalizeOrderNumber("HS251201-01")
	if got != "HS251201-01" {
		t.Fatalf("series prefix corrupted: got %s", got)
	}
}

func TestValidOrderNumber(t *testing.T) {
	valid := []string{"F20251010_001", "HS251201-01", "AB20250101_123"}
	invalid := []string{"", "F20251010", "F20251010_", "20251010_001", "F2025_001", "hello"}
	for _, n := range valid {
		if !ValidOrderNumber(n) {
			t.Fatalf("expected %q to be valid", n)
		}
	}
	for _, n := range invalid {
		if ValidOrderNumber(n) {
			t.Fatalf("expected %q to be invalid", n)
		}
	}
}

func TestOrderNumberPrefix(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"F20251010_001", "F20251010"},
		{"HS251201-01", "HS251201"},
		{"garbled", ""},
	}
	for _, tc := range cases {
		if got := OrderNumberPrefix(tc.in); got != tc.expected {
			t.Fatalf("OrderNumberPrefix(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestInferMissingNumbers_SingleDistinctFillsAll(t *testing.T) {
	got := InferMissingNumbers([]string{"F20251010_001", "", "???"})
	for i, n := range got {
		if n != "F20251010_001" {
			t.Fatalf("line %d expected F20251010_001, got %q", i, n)
		}
	}
}

func TestInferMissingNumbers_AmbiguousLeftUntouched(t *testing.T) {
	in := []string{"F20251010_001", "", "F20251010_002"}
	got := InferMissingNumbers(in)
	if got[1] != "" {
		t.Fatalf("ambiguous document must not fill line 1, got %q", got[1])
	}
	if got[0] != "F20251010_001" || got[2] != "F20251010_002" {
		t.Fatalf("valid numbers must survive: %v", got)
	}
}

func TestMostFrequentNumber(t *testing.T) {
	n, count := MostFrequentNumber([]string{"F20251010_001", "f20251010_001", "F20251010_002", "", "junk"})
	if n != "F20251010_001" || count != 2 {
		t.Fatalf("expected (F20251010_001, 2), got (%s, %d)", n, count)
	}

	n, count = MostFrequentNumber([]string{"", "junk"})
	if n != "" || count != 0 {
		t.Fatalf("expected no modal number, got (%s, %d)", n, count)
	}
}
