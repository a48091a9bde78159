package spatial

import (
	"testing"

	"bitbucket.org/mmdatafocus/statements_backend/models"
)

func TestInfer_BracketOverridesPerItem(t *testing.T) {
	lines := []LineInput{
		{Name: "Bolt", OrderNumber: "F20251010_001", Tier: models.ConfidenceTierHigh},
	}
	brackets := []BracketHint{
		{StartLine: 0, EndLine: 0, OrderNumber: "F20251010_002", Confidence: 0.9},
	}

	out := Infer(lines, nil, brackets, nil)
	if out[0].OrderNumber != "F20251010_002" {
		t.Fatalf("expected bracket number, got %q", out[0].OrderNumber)
	}
	if out[0].Source != models.OrderNumberSourceBracket {
		t.Fatalf("expected bracket source, got %s", out[0].Source)
	}
	if out[0].Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", out[0].Confidence)
	}
}

func TestInfer_LowConfidenceBracketFallsThrough(t *testing.T) {
	lines := []LineInput{
		{Name: "Bolt", OrderNumber: "F20251010_001", Tier: models.ConfidenceTierHigh},
	}
	brackets := []BracketHint{
		{StartLine: 0, EndLine: 0, OrderNumber: "F20251010_002", Confidence: 0.4},
	}

	out := Infer(lines, nil, brackets, nil)
	if out[0].Source != models.OrderNumberSourcePerItem {
		t.Fatalf("expected the line's own number to win, got %s", out[0].Source)
	}
	if out[0].OrderNumber != "F20251010_001" {
		t.Fatalf("expected F20251010_001, got %q", out[0].OrderNumber)
	}
	if out[0].Confidence != 0.85 {
		t.Fatalf("expected tier-derived confidence 0.85, got %v", out[0].Confidence)
	}
}

func TestInfer_SingleLineBracketBackfillsPreviousLine(t *testing.T) {
	lines := []LineInput{
		{Name: "first item"},
		{Name: "second item"},
	}
	brackets := []BracketHint{
		{StartLine: 1, EndLine: 1, OrderNumber: "F20251010_003", Confidence: 0.8},
	}

	out := Infer(lines, nil, brackets, nil)
	for i := range out {
		if out[i].OrderNumber != "F20251010_003" {
			t.Fatalf("line %d expected back-filled number, got %q", i, out[i].OrderNumber)
		}
		if out[i].Source != models.OrderNumberSourceBracket {
			t.Fatalf("line %d expected bracket source, got %s", i, out[i].Source)
		}
	}
}

func TestInfer_HandwritingRange(t *testing.T) {
	lines := []LineInput{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
	}
	hints := []RangeHint{{StartLine: 0, EndLine: 1, OrderNumber: "hs251201-1"}}

	out := Infer(lines, nil, nil, hints)
	for i := 0; i < 2; i++ {
		if out[i].OrderNumber != "HS251201-01" {
			t.Fatalf("line %d expected normalized range number, got %q", i, out[i].OrderNumber)
		}
		if out[i].Source != models.OrderNumberSourceHandwriting {
			t.Fatalf("line %d expected handwriting source, got %s", i, out[i].Source)
		}
		if out[i].Confidence != 0.8 {
			t.Fatalf("line %d expected confidence 0.8, got %v", i, out[i].Confidence)
		}
	}
	if out[2].OrderNumber != "" {
		t.Fatalf("line outside the range must stay unresolved, got %q", out[2].OrderNumber)
	}
}

func TestInfer_MarginNumberCarriesForward(t *testing.T) {
	lines := []LineInput{
		{Name: "WidgetA"},
		{Name: "WidgetB"},
	}
	words := []Word{
		{Text: "F20251010_001", X: 0, Y: 10, W: 30, H: 10},
		{Text: "WidgetA", X: 100, Y: 10, W: 60, H: 10},
		{Text: "WidgetB", X: 100, Y: 50, W: 60, H: 10},
	}

	out := Infer(lines, words, nil, nil)
	for i := range out {
		if out[i].OrderNumber != "F20251010_001" {
			t.Fatalf("line %d expected margin number, got %q", i, out[i].OrderNumber)
		}
		if out[i].Source != models.OrderNumberSourceMargin {
			t.Fatalf("line %d expected margin source, got %s", i, out[i].Source)
		}
		if out[i].Confidence != 0.7 {
			t.Fatalf("line %d expected confidence 0.7, got %v", i, out[i].Confidence)
		}
	}
}

func TestInfer_GlobalSingleNumber(t *testing.T) {
	lines := []LineInput{
		{Name: "ItemA"},
		{Name: "ItemB"},
	}
	// The only valid number on the page sits mid-row, outside the margin band.
	words := []Word{
		{Text: "Item", X: 0, Y: 10, W: 40, H: 10},
		{Text: "F20251010_007", X: 300, Y: 10, W: 100, H: 10},
	}

	out := Infer(lines, words, nil, nil)
	for i := range out {
		if out[i].OrderNumber != "F20251010_007" {
			t.Fatalf("line %d expected global number, got %q", i, out[i].OrderNumber)
		}
		if out[i].Source != models.OrderNumberSourceGlobal {
			t.Fatalf("line %d expected global source, got %s", i, out[i].Source)
		}
		if out[i].Confidence != 0.55 {
			t.Fatalf("line %d expected confidence 0.55, got %v", i, out[i].Confidence)
		}
	}
}

func TestClusterRows_GroupsByVerticalBand(t *testing.T) {
	words := []Word{
		{Text: "a", X: 0, Y: 10, W: 10, H: 10},
		{Text: "b", X: 20, Y: 12, W: 10, H: 10},
		{Text: "c", X: 0, Y: 60, W: 10, H: 10},
	}
	rows := ClusterRows(words)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if len(rows[0].Words) != 2 {
		t.Fatalf("expected first row to hold 2 words, got %d", len(rows[0].Words))
	}
	if rows[0].Text() != "a b" {
		t.Fatalf("expected row text %q, got %q", "a b", rows[0].Text())
	}
}

func TestAssociateLines_SimilarityThenIndexFallback(t *testing.T) {
	rows := ClusterRows([]Word{
		{Text: "Hex", X: 0, Y: 10, W: 30, H: 10},
		{Text: "Bolt", X: 40, Y: 10, W: 30, H: 10},
		{Text: "Washer", X: 0, Y: 50, W: 50, H: 10},
	})
	assoc := AssociateLines([]string{"Washer", "no such row text"}, rows)
	if assoc[0] != 1 {
		t.Fatalf("expected line 0 to map to row 1 by similarity, got %d", assoc[0])
	}
	if assoc[1] != 1 {
		t.Fatalf("expected line 1 to fall back to its index, got %d", assoc[1])
	}
}
