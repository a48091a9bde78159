package matching

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	maxCandidates = 15
	// recencyWindow bounds the exhaustive vendor fallback scan.
	recencyWindow = 90 * 24 * time.Hour
	// vendorFloor is required wherever candidates are found without an exact
	// order number.
	vendorFloor = 50
)

// CandidateGenerator ranks possible order-line matches for one extracted
// statement line. All registry access goes through the OrderRegistry
// interface; Aliases is optional.
type CandidateGenerator struct {
	Registry OrderRegistry
	Aliases  AliasSource
	// FallbackThreshold is the "good enough" score that skips the exhaustive
	// vendor-recent scan. Zero means the default of 40.
	FallbackThreshold int
	// Now is overridable for tests.
	Now func() time.Time
}

func (g *CandidateGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *CandidateGenerator) fallbackThreshold() int {
	if g.FallbackThreshold > 0 {
		return g.FallbackThreshold
	}
	return 40
}

// Generate returns at most 15 candidates, deduplicated by (order, line) and
// sorted by score, quantity agreement, then recency. Registry errors abort;
// empty or garbled line text just produces an empty list.
func (g *CandidateGenerator) Generate(ctx context.Context, line OCRLine, vendorHint string) ([]Candidate, error) {
	pool := map[[2]int]Candidate{}

	if err := g.exactNumberTier(ctx, line, vendorHint, pool); err != nil {
		return nil, err
	}
	if err := g.datePrefixTier(ctx, line, vendorHint, pool); err != nil {
		return nil, err
	}
	if err := g.freeTextTier(ctx, line, vendorHint, pool); err != nil {
		return nil, err
	}

	if bestScore(pool) < g.fallbackThreshold() {
		if err := g.vendorRecentTier(ctx, line, vendorHint, pool); err != nil {
			return nil, err
		}
	}
	if bestScore(pool) < g.fallbackThreshold() {
		if err := g.aliasBoost(ctx, line, pool); err != nil {
			return nil, err
		}
	}

	return rankCandidates(pool, line), nil
}

// Tier 1: the line's own (normalized) order number matches a record exactly.
func (g *CandidateGenerator) exactNumberTier(ctx context.Context, line OCRLine, vendorHint string, pool map[[2]int]Candidate) error {
	number := NormalizeOrderNumber(line.OrderNumber)
	if number == "" {
		return nil
	}
	order, err := g.Registry.FindByNumber(ctx, number)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	for _, ol := range order.Lines {
		score := 50 + vendorBonusSmall(vendorHint, order.VendorName)
		score += weighted(ItemMatchScore(line.Name, ol.ItemName, ol.Specification), 0.3)
		if line.Qty.Equal(ol.Qty) {
			score += 15
		} else if line.Qty.LessThan(ol.Qty) {
			score += 5
		}
		addCandidate(pool, *order, ol, score, "order number matched exactly")
	}
	return nil
}

// Tier 2: orders sharing the number's series+date prefix.
func (g *CandidateGenerator) datePrefixTier(ctx context.Context, line OCRLine, vendorHint string, pool map[[2]int]Candidate) error {
	prefix := OrderNumberPrefix(NormalizeOrderNumber(line.OrderNumber))
	if prefix == "" {
		return nil
	}
	orders, err := g.Registry.FindByNumberPrefix(ctx, prefix, vendorHint)
	if err != nil {
		return err
	}
	for _, order := range orders {
		for _, ol := range order.Lines {
			score := 30 + vendorBonusSmall(vendorHint, order.VendorName)
			score += weighted(ItemMatchScore(line.Name, ol.ItemName, ol.Specification), 0.4)
			if line.Qty.Equal(ol.Qty) {
				score += 15
			} else if line.Qty.LessThan(ol.Qty) {
				score += 5
			}
			addCandidate(pool, order, ol, score, "shared order-number date prefix")
		}
	}
	return nil
}

// Tier 3: order-number independent free-text search with shrinking terms.
func (g *CandidateGenerator) freeTextTier(ctx context.Context, line OCRLine, vendorHint string, pool map[[2]int]Candidate) error {
	for _, term := range searchTerms(line.Name) {
		orders, err := g.Registry.SearchByItemName(ctx, term, 20)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if !vendorAdmissible(vendorHint, order.VendorName) {
				continue
			}
			g.scoreTextualOrder(line, vendorHint, order, "item name search", pool)
		}
	}
	return nil
}

// Tier 4: exhaustively scan the hinted vendor's recent orders.
func (g *CandidateGenerator) vendorRecentTier(ctx context.Context, line OCRLine, vendorHint string, pool map[[2]int]Candidate) error {
	if strings.TrimSpace(vendorHint) == "" {
		return nil
	}
	orders, err := g.Registry.RecentByVendor(ctx, vendorHint, g.now().Add(-recencyWindow))
	if err != nil {
		return err
	}
	for _, order := range orders {
		if !vendorAdmissible(vendorHint, order.VendorName) {
			continue
		}
		g.scoreTextualOrder(line, vendorHint, order, "recent order of hinted vendor", pool)
	}
	return nil
}

// scoreTextualOrder applies the shared tier-3/4 scoring: vendor bonus up to
// 20, item similarity at 0.7 weight only when it clears 40, plus the quantity
// bonus. Candidates below 15 are noise and dropped.
func (g *CandidateGenerator) scoreTextualOrder(line OCRLine, vendorHint string, order Order, reason string, pool map[[2]int]Candidate) {
	vb := vendorBonusLarge(vendorHint, order.VendorName)
	for _, ol := range order.Lines {
		score := vb
		if item := ItemMatchScore(line.Name, ol.ItemName, ol.Specification); item >= 40 {
			score += weighted(item, 0.7)
		}
		score += QuantityBonus(line.Qty, ol.Qty)
		if score < 15 {
			continue
		}
		addCandidate(pool, order, ol, score, reason)
	}
}

// aliasBoost rescues lines whose raw OCR name is garbled but has been
// human-corrected before: candidates whose system fields equal a learned alias
// target are admitted and boosted, weighted by how often the alias was
// confirmed.
func (g *CandidateGenerator) aliasBoost(ctx context.Context, line OCRLine, pool map[[2]int]Candidate) error {
	if g.Aliases == nil {
		return nil
	}
	alias, err := g.Aliases.Lookup(ctx, line.Name)
	if err != nil || alias == nil {
		return err
	}

	boost := 25 + alias.Occurrences*5
	if boost > 45 {
		boost = 45
	}
	for key, cand := range pool {
		if !strings.EqualFold(strings.TrimSpace(cand.ItemName), alias.CanonicalName) {
			continue
		}
		if alias.CanonicalSpec != "" && !strings.EqualFold(strings.TrimSpace(cand.Specification), alias.CanonicalSpec) {
			continue
		}
		cand.Score += boost
		if cand.Score > 100 {
			cand.Score = 100
		}
		cand.Reasons = append(cand.Reasons, "learned item alias")
		pool[key] = cand
	}

	// Not in the pool yet: search the canonical name directly.
	orders, err := g.Registry.SearchByItemName(ctx, alias.CanonicalName, 10)
	if err != nil {
		return err
	}
	for _, order := range orders {
		for _, ol := range order.Lines {
			if !strings.EqualFold(strings.TrimSpace(ol.ItemName), alias.CanonicalName) {
				continue
			}
			key := [2]int{order.ID, ol.ID}
			if _, exists := pool[key]; exists {
				continue
			}
			score := boost + QuantityBonus(line.Qty, ol.Qty)
			if score > 100 {
				score = 100
			}
			addCandidate(pool, order, ol, score, "learned item alias")
		}
	}
	return nil
}

// searchTerms yields progressively coarser search strings: full name, first 12
// chars, first 8 chars, first whitespace token.
func searchTerms(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	terms := []string{name}
	runes := []rune(name)
	if len(runes) > 12 {
		terms = append(terms, strings.TrimSpace(string(runes[:12])))
	}
	if len(runes) > 8 {
		terms = append(terms, strings.TrimSpace(string(runes[:8])))
	}
	if fields := strings.Fields(name); len(fields) > 1 {
		terms = append(terms, fields[0])
	}
	seen := map[string]bool{}
	out := terms[:0]
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// vendorAdmissible enforces the vendor-similarity floor wherever a candidate
// is found without an exact order number. An absent hint waives the floor
// (the document may not name the vendor at all); the bonus is then zero.
func vendorAdmissible(hint, vendorName string) bool {
	if strings.TrimSpace(hint) == "" {
		return true
	}
	return VendorSimilarity(hint, vendorName) >= vendorFloor
}

func vendorBonusSmall(hint, vendorName string) int {
	sim := VendorSimilarity(hint, vendorName)
	switch {
	case sim >= 90:
		return 10
	case sim >= 70:
		return 5
	default:
		return 0
	}
}

func vendorBonusLarge(hint, vendorName string) int {
	sim := VendorSimilarity(hint, vendorName)
	switch {
	case sim >= 90:
		return 20
	case sim >= 70:
		return 10
	case sim >= vendorFloor:
		return 5
	default:
		return 0
	}
}

func addCandidate(pool map[[2]int]Candidate, order Order, ol Line, score int, reason string) {
	if score > 100 {
		score = 100
	}
	key := [2]int{order.ID, ol.ID}
	existing, ok := pool[key]
	if ok && existing.Score >= score {
		return
	}
	reasons := []string{reason}
	if ok {
		reasons = append(existing.Reasons, reason)
	}
	number := order.PurchaseNumber
	if number == "" {
		number = order.SalesNumber
	}
	pool[key] = Candidate{
		OrderId:       order.ID,
		LineId:        ol.ID,
		OrderNumber:   number,
		ItemName:      ol.ItemName,
		Specification: ol.Specification,
		Qty:           ol.Qty,
		UnitPrice:     ol.UnitPrice,
		OrderDate:     order.OrderDate,
		Score:         score,
		Reasons:       reasons,
	}
}

func bestScore(pool map[[2]int]Candidate) int {
	best := 0
	for _, c := range pool {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

func rankCandidates(pool map[[2]int]Candidate, line OCRLine) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// Quantity agreement breaks ties.
		qi := line.Qty.Equal(out[i].Qty)
		qj := line.Qty.Equal(out[j].Qty)
		if qi != qj {
			return qi
		}
		return out[i].OrderDate.After(out[j].OrderDate)
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}
