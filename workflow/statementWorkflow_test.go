package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/statements_backend/vision"
)

func TestParseStatementDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-10-10", true},
		{"2025.10.10", true},
		{"2025/10/10", true},
		{"20251010", true},
		{"not a date", false},
		{"", false},
	}
	for _, tc := range cases {
		got := parseStatementDate(tc.in)
		if tc.ok && got == nil {
			t.Fatalf("parseStatementDate(%q) expected a date", tc.in)
		}
		if !tc.ok && got != nil {
			t.Fatalf("parseStatementDate(%q) expected nil, got %v", tc.in, got)
		}
	}
}

func TestScopeForText(t *testing.T) {
	single := "vendor heading\nF20251010_001 Bolt 100"
	if got := scopeForText(single); got != vision.ScopeSingleOrder {
		t.Fatalf("expected single_order, got %s", got)
	}

	multi := "F20251010_001 Bolt 100\nF20251010_002 Nut 50"
	if got := scopeForText(multi); got != vision.ScopeMultiOrder {
		t.Fatalf("expected multi_order, got %s", got)
	}
}

func TestNeedsSecondaryPasses(t *testing.T) {
	strong := &vision.Draft{Items: []vision.DraftItem{
		{Name: "Bolt", OrderNumber: "F20251010_001", Confidence: "high"},
		{Name: "Nut", OrderNumber: "F20251010_001", Confidence: "medium"},
	}}
	if needsSecondaryPasses(strong) {
		t.Fatal("confident draft must not trigger secondary passes")
	}

	missing := &vision.Draft{Items: []vision.DraftItem{
		{Name: "Bolt", Confidence: "high"},
		{Name: "Nut", Confidence: "high"},
	}}
	if !needsSecondaryPasses(missing) {
		t.Fatal("draft without numbers must trigger secondary passes")
	}

	low := &vision.Draft{Items: []vision.DraftItem{
		{Name: "Bolt", OrderNumber: "F20251010_001", Confidence: "low"},
		{Name: "Nut", OrderNumber: "F20251010_001", Confidence: "low"},
	}}
	if !needsSecondaryPasses(low) {
		t.Fatal("low-confidence draft must trigger secondary passes")
	}

	empty := &vision.Draft{}
	if !needsSecondaryPasses(empty) {
		t.Fatal("empty draft must trigger secondary passes")
	}
}

func TestApplyExtraNumbers(t *testing.T) {
	// Fills only when the draft found nothing and the pass found exactly one.
	got := applyExtraNumbers([]string{"", ""}, []string{"F2025IOIO_001"})
	for i, n := range got {
		if n != "F20251010_001" {
			t.Fatalf("line %d expected F20251010_001, got %q", i, n)
		}
	}

	// Draft already has a number: untouched.
	got = applyExtraNumbers([]string{"F20251010_002", ""}, []string{"F20251010_001"})
	if got[0] != "F20251010_002" || got[1] != "" {
		t.Fatalf("existing numbers must not be overwritten: %v", got)
	}

	// Two distinct extras are ambiguous: untouched.
	got = applyExtraNumbers([]string{"", ""}, []string{"F20251010_001", "F20251010_002"})
	if got[0] != "" || got[1] != "" {
		t.Fatalf("ambiguous extras must not fill: %v", got)
	}
}

func TestTierForDraftConfidence(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"high", "High"},
		{"Medium", "Medium"},
		{"LOW", "Low"},
		{"", "Medium"},
		{"garbage", "Medium"},
	}
	for _, tc := range cases {
		if got := tierForDraftConfidence(tc.in); string(got) != tc.expected {
			t.Fatalf("tierForDraftConfidence(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}
