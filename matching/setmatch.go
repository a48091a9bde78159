package matching

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// Confidence buckets for a whole-document match.
const (
	SetConfidenceHigh   = "high"
	SetConfidenceMedium = "medium"
	SetConfidenceLow    = "low"
)

// certainAggregate lets an exact-number order bypass the wider vendor scan.
const certainAggregate = 80

// LineAssignment pairs one OCR line (by index) with one system order line.
type LineAssignment struct {
	OCRIndex     int
	SystemLineId int
	Score        int
}

// OrderMatch is one candidate order scored against the whole document.
type OrderMatch struct {
	Order        Order
	Aggregate    int
	Confidence   string
	MatchedCount int
	TotalLines   int
	Assignments  []LineAssignment
}

// SetMatchResult carries the single best order plus the ranked alternatives
// shown to the reviewer.
type SetMatchResult struct {
	Best   *OrderMatch
	Ranked []OrderMatch
}

// SetMatcher computes whole-document vs whole-order matches.
type SetMatcher struct {
	Registry OrderRegistry
	Now      func() time.Time
}

func (m *SetMatcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Match scores candidate orders against all lines of one statement. Orders
// found by an exact number short-circuit the wider scan only when their own
// aggregate reaches the certainty bar; otherwise number-matched and
// vendor-recent candidates are pooled and ranked together.
func (m *SetMatcher) Match(ctx context.Context, lines []OCRLine, orderHint string, vendorHint string) (*SetMatchResult, error) {
	if len(lines) == 0 {
		return &SetMatchResult{}, nil
	}

	numberMatched, err := m.ordersByDocumentNumbers(ctx, lines, orderHint)
	if err != nil {
		return nil, err
	}

	// Certainty short-circuit.
	for _, order := range numberMatched {
		om := scoreOrderAgainstLines(order, lines)
		if om.Aggregate >= certainAggregate {
			return &SetMatchResult{Best: &om, Ranked: []OrderMatch{om}}, nil
		}
	}

	pool := make([]Order, 0, len(numberMatched))
	pool = append(pool, numberMatched...)

	if strings.TrimSpace(vendorHint) != "" {
		recent, err := m.Registry.RecentByVendor(ctx, vendorHint, m.now().Add(-recencyWindow))
		if err != nil {
			return nil, err
		}
		for _, order := range recent {
			if VendorSimilarity(vendorHint, order.VendorName) < vendorFloor {
				continue
			}
			pool = append(pool, order)
		}
	}

	seen := map[int]bool{}
	matches := make([]OrderMatch, 0, len(pool))
	for _, order := range pool {
		if seen[order.ID] {
			continue
		}
		seen[order.ID] = true
		matches = append(matches, scoreOrderAgainstLines(order, lines))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Aggregate != matches[j].Aggregate {
			return matches[i].Aggregate > matches[j].Aggregate
		}
		if matches[i].MatchedCount != matches[j].MatchedCount {
			return matches[i].MatchedCount > matches[j].MatchedCount
		}
		return len(matches[i].Order.Lines) > len(matches[j].Order.Lines)
	})

	result := &SetMatchResult{}
	if len(matches) > 0 {
		best := matches[0]
		result.Best = &best
	}
	if len(matches) > 10 {
		matches = matches[:10]
	}
	result.Ranked = matches
	return result, nil
}

func (m *SetMatcher) ordersByDocumentNumbers(ctx context.Context, lines []OCRLine, orderHint string) ([]Order, error) {
	numbers := []string{}
	seen := map[string]bool{}
	push := func(raw string) {
		n := NormalizeOrderNumber(raw)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	push(orderHint)
	for _, line := range lines {
		push(line.OrderNumber)
	}

	var orders []Order
	for _, n := range numbers {
		order, err := m.Registry.FindByNumber(ctx, n)
		if err != nil {
			return nil, err
		}
		if order != nil {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// scoreOrderAgainstLines runs the greedy one-to-one assignment: each OCR line
// takes the highest-scoring still-unused order line when that score clears 40.
// No system line is ever assigned to two OCR lines.
func scoreOrderAgainstLines(order Order, lines []OCRLine) OrderMatch {
	used := map[int]bool{}
	assignments := []LineAssignment{}
	totalSim := 0

	for i, line := range lines {
		bestScore := 0
		bestLine := -1
		for j, ol := range order.Lines {
			if used[j] {
				continue
			}
			score := CandidateScore(line.Name, line.Qty, ol.ItemName, ol.Specification, ol.Qty)
			if score > bestScore {
				bestScore = score
				bestLine = j
			}
		}
		if bestLine >= 0 && bestScore >= 40 {
			used[bestLine] = true
			assignments = append(assignments, LineAssignment{
				OCRIndex:     i,
				SystemLineId: order.Lines[bestLine].ID,
				Score:        bestScore,
			})
			totalSim += bestScore
		}
	}

	matched := len(assignments)
	aggregate := 0
	if matched > 0 {
		matchRatio := float64(matched) / float64(len(lines))
		avgSim := float64(totalSim) / float64(matched)
		aggregate = int(math.Round(matchRatio*50 + avgSim*0.5))
		if aggregate > 100 {
			aggregate = 100
		}
	}

	confidence := SetConfidenceLow
	switch {
	case aggregate >= 80:
		confidence = SetConfidenceHigh
	case aggregate >= 50:
		confidence = SetConfidenceMedium
	}

	return OrderMatch{
		Order:        order,
		Aggregate:    aggregate,
		Confidence:   confidence,
		MatchedCount: matched,
		TotalLines:   len(lines),
		Assignments:  assignments,
	}
}
