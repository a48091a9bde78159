package spatial

import (
	"strings"

	"bitbucket.org/mmdatafocus/statements_backend/matching"
	"bitbucket.org/mmdatafocus/statements_backend/models"
)

// BracketHint is an explicit line(-range) -> order-number mapping reported by
// the secondary bracket-mapping extraction pass. StartLine == EndLine for a
// single-line bracket. Line indexes are zero-based.
type BracketHint struct {
	StartLine   int
	EndLine     int
	OrderNumber string
	Confidence  float64
}

// RangeHint is an explicit line-range -> order-number mapping from the
// handwriting/margin-range secondary pass.
type RangeHint struct {
	StartLine   int
	EndLine     int
	OrderNumber string
}

// LineInput is one extracted line as the inference engine sees it.
type LineInput struct {
	Name        string
	OrderNumber string
	Tier        models.ConfidenceTier
}

// Inference is the resolved order number for one line, tagged with the source
// that produced it.
type Inference struct {
	OrderNumber string
	Source      models.OrderNumberSource
	Confidence  float64
}

// resolver returns the inference for one line index, or nil to pass to the
// next source.
type resolver func(lineIdx int) *Inference

const (
	minBracketConfidence      = 0.6
	backfillBracketConfidence = 0.75
	marginConfidence          = 0.7
	globalConfidence          = 0.55
	marginBandRatio           = 0.2
)

// Infer resolves a per-line order number from the priority-ordered sources:
// bracket, handwriting range, margin, per-item, global. First match wins per
// line; unresolved lines get a zero Inference.
func Infer(lines []LineInput, words []Word, brackets []BracketHint, handwriting []RangeHint) []Inference {
	rows := ClusterRows(words)
	lineNames := make([]string, len(lines))
	for i, l := range lines {
		lineNames[i] = l.Name
	}
	assoc := AssociateLines(lineNames, rows)

	resolvers := []resolver{
		bracketResolver(lines, brackets),
		handwritingResolver(lines, handwriting),
		marginResolver(lines, rows, assoc),
		perItemResolver(lines),
		globalResolver(lines, words),
	}

	out := make([]Inference, len(lines))
	for i := range lines {
		for _, resolve := range resolvers {
			if inf := resolve(i); inf != nil {
				out[i] = *inf
				break
			}
		}
	}
	return out
}

// bracketResolver applies explicit bracket mappings. Low-confidence hints are
// discarded outright; a confident single-line bracket also back-fills the
// immediately preceding line when that line carries no number of its own.
func bracketResolver(lines []LineInput, brackets []BracketHint) resolver {
	byLine := map[int]*Inference{}
	for _, b := range brackets {
		if b.Confidence < minBracketConfidence {
			continue
		}
		number := matching.NormalizeOrderNumber(b.OrderNumber)
		if number == "" {
			continue
		}
		conf := b.Confidence
		if conf > 0.95 {
			conf = 0.95
		}
		for i := b.StartLine; i <= b.EndLine && i < len(lines); i++ {
			if i < 0 {
				continue
			}
			byLine[i] = &Inference{OrderNumber: number, Source: models.OrderNumberSourceBracket, Confidence: conf}
		}
		if b.StartLine == b.EndLine && b.Confidence >= backfillBracketConfidence {
			prev := b.StartLine - 1
			if prev >= 0 && prev < len(lines) &&
				strings.TrimSpace(lines[prev].OrderNumber) == "" && byLine[prev] == nil {
				byLine[prev] = &Inference{OrderNumber: number, Source: models.OrderNumberSourceBracket, Confidence: conf}
			}
		}
	}
	return func(lineIdx int) *Inference { return byLine[lineIdx] }
}

func handwritingResolver(lines []LineInput, hints []RangeHint) resolver {
	byLine := map[int]*Inference{}
	for _, h := range hints {
		number := matching.NormalizeOrderNumber(h.OrderNumber)
		if number == "" {
			continue
		}
		for i := h.StartLine; i <= h.EndLine && i < len(lines); i++ {
			if i < 0 {
				continue
			}
			byLine[i] = &Inference{OrderNumber: number, Source: models.OrderNumberSourceHandwriting, Confidence: 0.8}
		}
	}
	return func(lineIdx int) *Inference { return byLine[lineIdx] }
}

// marginResolver finds order numbers written in the left band of a row and
// applies each to that row and every following row until a newer margin number
// supersedes it.
func marginResolver(lines []LineInput, rows []Row, assoc []int) resolver {
	marginByRow := make([]string, len(rows))
	current := ""
	for i, row := range rows {
		band := row.MinX + marginBandRatio*(row.MaxX-row.MinX)
		for _, w := range row.Words {
			if w.X > band {
				continue
			}
			number := matching.NormalizeOrderNumber(w.Text)
			if matching.ValidOrderNumber(number) {
				current = number
				break
			}
		}
		marginByRow[i] = current
	}

	return func(lineIdx int) *Inference {
		if lineIdx >= len(assoc) {
			return nil
		}
		row := assoc[lineIdx]
		if row < 0 || row >= len(marginByRow) || marginByRow[row] == "" {
			return nil
		}
		return &Inference{
			OrderNumber: marginByRow[row],
			Source:      models.OrderNumberSourceMargin,
			Confidence:  marginConfidence,
		}
	}
}

// perItemResolver trusts the number the primary extraction attached to the
// line itself, at a confidence derived from that line's extraction tier.
func perItemResolver(lines []LineInput) resolver {
	return func(lineIdx int) *Inference {
		line := lines[lineIdx]
		if strings.TrimSpace(line.OrderNumber) == "" {
			return nil
		}
		number := matching.NormalizeOrderNumber(line.OrderNumber)
		if number == "" {
			return nil
		}
		return &Inference{
			OrderNumber: number,
			Source:      models.OrderNumberSourcePerItem,
			Confidence:  line.Tier.InferenceConfidence(),
		}
	}
}

// globalResolver applies the document's single distinct number everywhere
// still unresolved.
func globalResolver(lines []LineInput, words []Word) resolver {
	distinct := map[string]bool{}
	for _, l := range lines {
		n := matching.NormalizeOrderNumber(l.OrderNumber)
		if matching.ValidOrderNumber(n) {
			distinct[n] = true
		}
	}
	for _, w := range words {
		n := matching.NormalizeOrderNumber(w.Text)
		if matching.ValidOrderNumber(n) {
			distinct[n] = true
		}
	}
	if len(distinct) != 1 {
		return func(int) *Inference { return nil }
	}
	var only string
	for n := range distinct {
		only = n
	}
	return func(int) *Inference {
		return &Inference{
			OrderNumber: only,
			Source:      models.OrderNumberSourceGlobal,
			Confidence:  globalConfidence,
		}
	}
}
