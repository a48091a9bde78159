package models

import "testing"

func TestStatementStatus_Transitions(t *testing.T) {
	terminal := []StatementStatus{StatementStatusConfirmed, StatementStatusRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
		if s.Claimable() {
			t.Fatalf("%s must not be claimable", s)
		}
	}

	// Failed is retryable, never terminal.
	if StatementStatusFailed.IsTerminal() {
		t.Fatal("Failed must not be terminal")
	}
	if !StatementStatusFailed.Claimable() {
		t.Fatal("Failed must be claimable")
	}

	claimable := []StatementStatus{StatementStatusPending, StatementStatusQueued, StatementStatusFailed}
	for _, s := range claimable {
		if !s.Claimable() {
			t.Fatalf("%s must be claimable", s)
		}
	}
	for _, s := range []StatementStatus{StatementStatusProcessing, StatementStatusExtracted} {
		if s.Claimable() {
			t.Fatalf("%s must not be claimable", s)
		}
		if s.IsTerminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score    int
		expected ConfidenceTier
	}{
		{100, ConfidenceTierHigh},
		{80, ConfidenceTierHigh},
		{79, ConfidenceTierMedium},
		{50, ConfidenceTierMedium},
		{49, ConfidenceTierLow},
		{1, ConfidenceTierLow},
		{0, ConfidenceTierUnmatched},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.expected {
			t.Fatalf("TierForScore(%d) expected %s, got %s", tc.score, tc.expected, got)
		}
	}
}

func TestInferenceConfidence(t *testing.T) {
	cases := []struct {
		tier     ConfidenceTier
		expected float64
	}{
		{ConfidenceTierHigh, 0.85},
		{ConfidenceTierMedium, 0.7},
		{ConfidenceTierLow, 0.55},
		{ConfidenceTierUnmatched, 0.55},
	}
	for _, tc := range cases {
		if got := tc.tier.InferenceConfidence(); got != tc.expected {
			t.Fatalf("InferenceConfidence(%s) expected %v, got %v", tc.tier, tc.expected, got)
		}
	}
}
