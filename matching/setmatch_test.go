package matching

import (
	"context"
	"testing"
	"time"
)

func TestScoreOrderAgainstLines_OneToOne(t *testing.T) {
	order := Order{
		ID:    1,
		Lines: []Line{{ID: 11, ItemName: "Bolt", Qty: d("10")}},
	}
	// Two OCR lines compete for the single order line; only one may win.
	lines := []OCRLine{
		{Name: "Bolt", Qty: d("10")},
		{Name: "Bolt", Qty: d("10")},
	}

	om := scoreOrderAgainstLines(order, lines)
	if om.MatchedCount != 1 {
		t.Fatalf("expected exactly one assignment, got %d", om.MatchedCount)
	}
	seen := map[int]bool{}
	for _, a := range om.Assignments {
		if seen[a.SystemLineId] {
			t.Fatalf("system line %d assigned twice", a.SystemLineId)
		}
		seen[a.SystemLineId] = true
	}
	// round(0.5*50 + 100*0.5) with one of two lines matched at similarity 100.
	if om.Aggregate != 75 {
		t.Fatalf("expected aggregate 75, got %d", om.Aggregate)
	}
	if om.Confidence != SetConfidenceMedium {
		t.Fatalf("expected medium confidence, got %s", om.Confidence)
	}
}

func TestScoreOrderAgainstLines_FullMatchIsHigh(t *testing.T) {
	order := Order{
		ID: 1,
		Lines: []Line{
			{ID: 11, ItemName: "Bolt", Qty: d("10")},
			{ID: 12, ItemName: "Nut", Qty: d("5")},
		},
	}
	lines := []OCRLine{
		{Name: "Bolt", Qty: d("10")},
		{Name: "Nut", Qty: d("5")},
	}

	om := scoreOrderAgainstLines(order, lines)
	if om.MatchedCount != 2 {
		t.Fatalf("expected 2 assignments, got %d", om.MatchedCount)
	}
	if om.Aggregate != 100 {
		t.Fatalf("expected aggregate 100, got %d", om.Aggregate)
	}
	if om.Confidence != SetConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", om.Confidence)
	}
}

func TestScoreOrderAgainstLines_WeakLinesSkipped(t *testing.T) {
	order := Order{
		ID:    1,
		Lines: []Line{{ID: 11, ItemName: "Bolt", Qty: d("10")}},
	}
	lines := []OCRLine{{Name: "completely different thing", Qty: d("3")}}

	om := scoreOrderAgainstLines(order, lines)
	if om.MatchedCount != 0 {
		t.Fatalf("expected no assignments, got %d", om.MatchedCount)
	}
	if om.Aggregate != 0 {
		t.Fatalf("expected aggregate 0, got %d", om.Aggregate)
	}
}

func TestMatch_ExactNumberShortCircuits(t *testing.T) {
	registry := &fakeRegistry{orders: []Order{
		{
			ID:             1,
			PurchaseNumber: "F20251010_001",
			VendorName:     "Acme",
			Lines: []Line{
				{ID: 11, ItemName: "Bolt", Qty: d("10")},
				{ID: 12, ItemName: "Nut", Qty: d("5")},
			},
		},
		{
			ID:         2,
			VendorName: "Acme",
			OrderDate:  time.Now().Add(-time.Hour),
			Lines:      []Line{{ID: 21, ItemName: "Bolt", Qty: d("10")}},
		},
	}}
	matcher := &SetMatcher{Registry: registry}

	lines := []OCRLine{
		{Name: "Bolt", Qty: d("10"), OrderNumber: "F20251010_001"},
		{Name: "Nut", Qty: d("5"), OrderNumber: "F20251010_001"},
	}
	result, err := matcher.Match(context.Background(), lines, "F20251010_001", "Acme")
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if result.Best == nil || result.Best.Order.ID != 1 {
		t.Fatalf("expected order 1 as best, got %+v", result.Best)
	}
	// The certain number match skips the vendor-wide scan entirely.
	if len(result.Ranked) != 1 {
		t.Fatalf("expected 1 ranked order, got %d", len(result.Ranked))
	}
}

func TestMatch_PoolsVendorRecentWhenNumberWeak(t *testing.T) {
	registry := &fakeRegistry{orders: []Order{
		{
			ID:             1,
			PurchaseNumber: "F20251010_001",
			VendorName:     "Acme",
			Lines:          []Line{{ID: 11, ItemName: "unrelated item", Qty: d("99")}},
		},
		{
			ID:         2,
			VendorName: "Acme",
			OrderDate:  time.Now().Add(-time.Hour),
			Lines: []Line{
				{ID: 21, ItemName: "Bolt", Qty: d("10")},
				{ID: 22, ItemName: "Nut", Qty: d("5")},
			},
		},
	}}
	matcher := &SetMatcher{Registry: registry}

	// The number on the document points at an order whose contents disagree;
	// the vendor's recent order that actually matches the lines must win.
	lines := []OCRLine{
		{Name: "Bolt", Qty: d("10"), OrderNumber: "F20251010_001"},
		{Name: "Nut", Qty: d("5")},
	}
	result, err := matcher.Match(context.Background(), lines, "", "Acme")
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if result.Best == nil || result.Best.Order.ID != 2 {
		t.Fatalf("expected order 2 as best, got %+v", result.Best)
	}
	if len(result.Ranked) < 2 {
		t.Fatalf("expected both orders ranked, got %d", len(result.Ranked))
	}
}

func TestMatch_NoLines(t *testing.T) {
	matcher := &SetMatcher{Registry: &fakeRegistry{}}
	result, err := matcher.Match(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	if result.Best != nil {
		t.Fatalf("expected no best match, got %+v", result.Best)
	}
}
