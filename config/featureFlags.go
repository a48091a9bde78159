package config

import (
	"os"
	"strings"
)

// AutoConfirmEnabled gates the automatic confirm that fires when a statement's
// quantity match is flagged and every matched line already shows a received qty.
//
// Set via env:
// - STATEMENT_AUTO_CONFIRM=true
func AutoConfirmEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STATEMENT_AUTO_CONFIRM")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// MatchFallbackThreshold is the "good enough" candidate score below which the
// generator falls through to the vendor-recent exhaustive scan. Untuned
// heuristic; kept configurable on purpose.
//
// Set via env:
// - MATCH_FALLBACK_THRESHOLD=40
func MatchFallbackThreshold() int {
	return IntFromEnv("MATCH_FALLBACK_THRESHOLD", 40)
}

// AuxiliaryPassesEnabled gates the bracket-mapping / margin-range secondary
// extraction calls. They only fire on low-confidence primary results anyway;
// this flag turns them off entirely.
//
// Set via env:
// - STATEMENT_AUX_PASSES=false
func AuxiliaryPassesEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STATEMENT_AUX_PASSES")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
