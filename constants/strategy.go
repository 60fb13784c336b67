package constants

import "strings"

// StrategyID names an extraction strategy.
type StrategyID string

const (
	StrategyMarker    StrategyID = "marker"
	StrategyTesseract StrategyID = "tesseract"
)

var allStrategies = []StrategyID{
	StrategyMarker,
	StrategyTesseract,
}

// StrategiesAsStrings returns the known strategy ids in display order.
func StrategiesAsStrings() []string {
	result := make([]string, len(allStrategies))
	for i, s := range allStrategies {
		result[i] = string(s)
	}
	return result
}

// CanonicalStrategy lowercases and trims input and reports whether it names a known strategy.
func CanonicalStrategy(input string) (StrategyID, bool) {
	normalized := StrategyID(strings.ToLower(strings.TrimSpace(input)))
	for _, s := range allStrategies {
		if normalized == s {
			return s, true
		}
	}
	return normalized, false
}
