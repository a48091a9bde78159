package spatial

import (
	"sort"

	"bitbucket.org/mmdatafocus/statements_backend/matching"
)

// Word is one OCR token with its bounding box, in image pixel coordinates.
type Word struct {
	Text string
	X    float64
	Y    float64
	W    float64
	H    float64
}

func (w Word) centerY() float64 { return w.Y + w.H/2 }

// Row is a horizontal band of words belonging to one visual line of the
// document.
type Row struct {
	Words   []Word
	CenterY float64
	MinX    float64
	MaxX    float64
}

// Text joins the row's words left to right.
func (r Row) Text() string {
	sorted := make([]Word, len(r.Words))
	copy(sorted, r.Words)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })
	out := ""
	for i, w := range sorted {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return out
}

// ClusterRows groups words whose vertical centers lie within 0.6x the median
// word height of each other. Rows come back top to bottom.
func ClusterRows(words []Word) []Row {
	if len(words) == 0 {
		return nil
	}

	heights := make([]float64, 0, len(words))
	for _, w := range words {
		if w.H > 0 {
			heights = append(heights, w.H)
		}
	}
	tolerance := 10.0
	if len(heights) > 0 {
		sort.Float64s(heights)
		tolerance = 0.6 * heights[len(heights)/2]
	}

	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].centerY() < sorted[j].centerY() })

	var rows []Row
	for _, w := range sorted {
		if len(rows) > 0 {
			last := &rows[len(rows)-1]
			if w.centerY()-last.CenterY <= tolerance {
				last.Words = append(last.Words, w)
				// Running mean keeps the band from drifting on skewed scans.
				total := 0.0
				for _, rw := range last.Words {
					total += rw.centerY()
				}
				last.CenterY = total / float64(len(last.Words))
				if w.X < last.MinX {
					last.MinX = w.X
				}
				if w.X+w.W > last.MaxX {
					last.MaxX = w.X + w.W
				}
				continue
			}
		}
		rows = append(rows, Row{
			Words:   []Word{w},
			CenterY: w.centerY(),
			MinX:    w.X,
			MaxX:    w.X + w.W,
		})
	}
	return rows
}

// AssociateLines maps each extracted line index to its best-matching row index
// by name/token overlap, falling back to positional order when nothing scores
// 35 or better. Lines without any plausible row map to -1.
func AssociateLines(lineNames []string, rows []Row) []int {
	assoc := make([]int, len(lineNames))
	for i := range assoc {
		assoc[i] = -1
	}
	if len(rows) == 0 {
		return assoc
	}

	rowTexts := make([]string, len(rows))
	for i, r := range rows {
		rowTexts[i] = r.Text()
	}

	for i, name := range lineNames {
		bestRow := -1
		bestScore := 0
		for j, text := range rowTexts {
			score := matching.StringSimilarity(name, text)
			if score > bestScore {
				bestScore = score
				bestRow = j
			}
		}
		if bestScore >= 35 {
			assoc[i] = bestRow
			continue
		}
		// Index fallback: assume the table body reads top to bottom.
		if i < len(rows) {
			assoc[i] = i
		}
	}
	return assoc
}
