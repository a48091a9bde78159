package matching

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// Scoring primitives. All scores are 0-100 ints. Nothing in here returns an
// error: empty or malformed text degrades to 0.

func normalizeForCompare(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}

// weighted scales a 0-100 score, rounding half up. Truncation would turn an
// exact product like 90*0.7 into 62 through float representation error.
func weighted(score int, w float64) int {
	return int(math.Round(float64(score) * w))
}

// StringSimilarity is case/whitespace-insensitive. Exact gives 100;
// containment is scaled by length ratio; otherwise edit-distance percentage
// plus a small bonus for shared tokens of 3+ chars.
func StringSimilarity(a, b string) int {
	na := normalizeForCompare(a)
	nb := normalizeForCompare(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}

	shorter, longer := na, nb
	if runeLen(shorter) > runeLen(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		ratio := float64(runeLen(shorter)) / float64(runeLen(longer))
		switch {
		case ratio >= 0.7:
			return 90
		case ratio >= 0.5:
			return 70
		case ratio >= 0.3:
			return 50
		default:
			return 30
		}
	}

	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := runeLen(longer)
	score := 100 * (maxLen - dist) / maxLen
	if score < 0 {
		score = 0
	}
	score += sharedTokenBonus(a, b)
	if score > 100 {
		score = 100
	}
	return score
}

// sharedTokenBonus rewards token overlap that pure edit distance misses
// (reordered words, dropped middles). +5 per distinct shared 3+ char token,
// capped 15. Both sides are compared as sets so a repeated token cannot
// inflate the bonus from one direction only.
func sharedTokenBonus(a, b string) int {
	ta := tokenSet(a)
	if len(ta) == 0 {
		return 0
	}
	bonus := 0
	for tok := range tokenSet(b) {
		if ta[tok] {
			bonus += 5
			if bonus >= 15 {
				return 15
			}
		}
	}
	return bonus
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range tokenize(s) {
		if runeLen(tok) >= 3 {
			set[tok] = true
		}
	}
	return set
}

// ItemMatchScore scores an OCR item name against a system item name + spec.
// A name similarity of 30+ always wins outright; a specification-only match is
// heavily discounted so spec text can never masquerade as a name match.
func ItemMatchScore(ocrName, sysName, sysSpec string) int {
	nameScore := StringSimilarity(ocrName, sysName)
	if nameScore >= 30 {
		return nameScore
	}
	specScore := StringSimilarity(ocrName, sysSpec)
	if specScore >= 60 {
		discounted := weighted(specScore, 0.4)
		if discounted > 35 {
			discounted = 35
		}
		return discounted
	}
	w := weighted(specScore, 0.3)
	if nameScore > w {
		return nameScore
	}
	return w
}

// Corporate suffix tokens dropped before vendor comparison, across the scripts
// the statements actually arrive in. Token-level so "Conveyor" keeps its "co".
var vendorSuffixTokens = map[string]bool{
	"co": true, "ltd": true, "inc": true, "corp": true,
	"corporation": true, "company": true, "incorporated": true,
	"llc": true, "gmbh": true, "plc": true,
	"주식회사": true, "유한회사": true, "주": true, "유": true,
	"株式会社": true, "有限会社": true,
}

func stripVendorName(s string) string {
	var b strings.Builder
	for _, tok := range tokenize(s) {
		if vendorSuffixTokens[tok] {
			continue
		}
		b.WriteString(tok)
	}
	core := b.String()
	// CJK corporate markers are usually glued to the name, not space-separated.
	for _, marker := range []string{"주식회사", "유한회사", "株式会社", "有限会社"} {
		core = strings.TrimPrefix(core, marker)
		core = strings.TrimSuffix(core, marker)
	}
	return core
}

// vendorTransliterations maps name fragments between scripts so that the same
// concept written in Korean and Latin compares equal. Extend as vendors appear.
var vendorTransliterations = map[string]string{
	"와이지": "yg",
	"테크":   "tech",
	"산업":   "industrial",
	"상사":   "trading",
	"전자":   "electronics",
	"기계":   "machinery",
	"금속":   "metal",
	"철강":   "steel",
	"화학":   "chemical",
	"건설":   "construction",
	"물류":   "logistics",
	"정밀":   "precision",
	"코리아": "korea",
	"에스":   "s",
	"케이":   "k",
	"제이":   "j",
}

func transliterateVendor(s string) string {
	for from, to := range vendorTransliterations {
		s = strings.ReplaceAll(s, from, to)
	}
	return s
}

// VendorSimilarity compares two vendor names after stripping corporate
// suffixes and punctuation. The transliteration path bridges the two-script
// case (e.g. a Korean statement naming a vendor registered in Latin script).
func VendorSimilarity(a, b string) int {
	na := stripVendorName(a)
	nb := stripVendorName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 90
	}

	ta := transliterateVendor(na)
	tb := transliterateVendor(nb)
	if ta == tb || strings.Contains(ta, tb) || strings.Contains(tb, ta) {
		return 85
	}

	dist := levenshtein.ComputeDistance(ta, tb)
	maxLen := runeLen(ta)
	if l := runeLen(tb); l > maxLen {
		maxLen = l
	}
	score := 100 * (maxLen - dist) / maxLen
	if score < 0 {
		score = 0
	}
	return score
}

// QuantityBonus: exact quantities are strong evidence, partial deliveries
// (OCR qty within the ordered qty) weaker.
func QuantityBonus(ocrQty, sysQty decimal.Decimal) int {
	if ocrQty.IsZero() && sysQty.IsZero() {
		return 0
	}
	if ocrQty.Equal(sysQty) {
		return 20
	}
	if ocrQty.LessThan(sysQty) {
		return 10
	}
	return 0
}

// CandidateScore is the per-line pairing score: item similarity plus quantity
// bonus, capped at 100.
func CandidateScore(ocrName string, ocrQty decimal.Decimal, sysName, sysSpec string, sysQty decimal.Decimal) int {
	score := ItemMatchScore(ocrName, sysName, sysSpec) + QuantityBonus(ocrQty, sysQty)
	if score > 100 {
		score = 100
	}
	return score
}
