package matching

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Order-number canonical forms:
//   purchase side  <letters><8-digit date>_<seq>  -> seq zero-padded to 3
//   sales side     <letters><6-digit date>-<seq>  -> seq zero-padded to 2
// Anything else is uppercased and stripped of whitespace and punctuation
// (underscore and hyphen survive). Normalization is idempotent.
var (
	purchaseNumberPattern = regexp.MustCompile(`^([A-Z]+)(\d{8})_(\d+)$`)
	salesNumberPattern    = regexp.MustCompile(`^([A-Z]+)(\d{6})-(\d+)$`)
)

// ocrDigitConfusions are the letter shapes the OCR step habitually reads where
// a digit belongs. Applied only inside the numeric part of a number segment,
// never to the alphabetic prefix (so "HS..." keeps its S).
var ocrDigitConfusions = map[rune]rune{
	'O': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'B': '8',
	'Z': '2',
}

// NormalizeOrderNumber canonicalizes one extracted order-number string.
func NormalizeOrderNumber(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range s {
		if r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s = correctDigitConfusions(b.String())

	if m := purchaseNumberPattern.FindStringSubmatch(s); m != nil {
		seq, err := strconv.Atoi(m[3])
		if err == nil {
			return fmt.Sprintf("%s%s_%03d", m[1], m[2], seq)
		}
	}
	if m := salesNumberPattern.FindStringSubmatch(s); m != nil {
		seq, err := strconv.Atoi(m[3])
		if err == nil {
			return fmt.Sprintf("%s%s-%02d", m[1], m[2], seq)
		}
	}
	return s
}

// correctDigitConfusions fixes mis-OCR'd letters per segment. A segment is the
// run between separators; within it the leading alphabetic prefix is kept
// verbatim and the remainder is treated as numeric.
func correctDigitConfusions(s string) string {
	var b strings.Builder
	start := 0
	for i, r := range s {
		if r == '_' || r == '-' {
			b.WriteString(correctSegment(s[start:i]))
			b.WriteRune(r)
			start = i + 1
		}
	}
	b.WriteString(correctSegment(s[start:]))
	return b.String()
}

func correctSegment(seg string) string {
	runes := []rune(seg)
	// Leading letters are the series prefix; leave them alone.
	prefixEnd := 0
	for prefixEnd < len(runes) && unicode.IsLetter(runes[prefixEnd]) {
		prefixEnd++
	}
	// An all-letter segment has no numeric part to correct. Note this keeps a
	// series prefix like "HS" intact: the S before the first digit is prefix,
	// not a mis-read 5.
	if prefixEnd == len(runes) {
		return seg
	}
	for i := prefixEnd; i < len(runes); i++ {
		if repl, ok := ocrDigitConfusions[runes[i]]; ok {
			runes[i] = repl
		}
	}
	return string(runes)
}

// ValidOrderNumber reports whether s already has one of the two canonical
// shapes.
func ValidOrderNumber(s string) bool {
	return purchaseNumberPattern.MatchString(s) || salesNumberPattern.MatchString(s)
}

// OrderNumberPrefix returns the series+date part of a canonical number
// ("F20251010_001" -> "F20251010"), or "" for non-canonical input. Used for
// the date-prefix registry search.
func OrderNumberPrefix(s string) string {
	if m := purchaseNumberPattern.FindStringSubmatch(s); m != nil {
		return m[1] + m[2]
	}
	if m := salesNumberPattern.FindStringSubmatch(s); m != nil {
		return m[1] + m[2]
	}
	return ""
}

// InferMissingNumbers fills order numbers document-wide:
//   - exactly one distinct valid number in the document -> every line gets it;
//   - as many distinct numbers as lines -> assign by position (best effort);
//   - anything else is ambiguous and left untouched.
// Input and output are parallel to the document's lines.
func InferMissingNumbers(lineNumbers []string) []string {
	out := make([]string, len(lineNumbers))
	var distinct []string
	seen := map[string]bool{}
	for i, n := range lineNumbers {
		norm := ""
		if strings.TrimSpace(n) != "" {
			norm = NormalizeOrderNumber(n)
		}
		out[i] = norm
		if norm != "" && ValidOrderNumber(norm) && !seen[norm] {
			seen[norm] = true
			distinct = append(distinct, norm)
		}
	}

	switch {
	case len(distinct) == 1:
		for i := range out {
			if out[i] == "" || !ValidOrderNumber(out[i]) {
				out[i] = distinct[0]
			}
		}
	case len(distinct) == len(lineNumbers) && len(distinct) > 1:
		for i := range out {
			out[i] = distinct[i]
		}
	}
	return out
}

// MostFrequentNumber returns the modal valid number across lines and its
// count; "" when no line carries a valid number.
func MostFrequentNumber(lineNumbers []string) (string, int) {
	counts := map[string]int{}
	order := []string{}
	for _, n := range lineNumbers {
		if strings.TrimSpace(n) == "" {
			continue
		}
		norm := NormalizeOrderNumber(n)
		if !ValidOrderNumber(norm) {
			continue
		}
		if counts[norm] == 0 {
			order = append(order, norm)
		}
		counts[norm]++
	}
	best, bestCount := "", 0
	for _, n := range order {
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}
	return best, bestCount
}
