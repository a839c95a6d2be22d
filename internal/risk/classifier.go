// Package risk classifies raw confidence signals from the threat-intelligence
// service into a uniform four-tier taxonomy and normalizes evaluation
// responses into display-ready records.
package risk

import "strings"

// Tier is the normalized risk bucket derived from an upstream confidence label.
type Tier string

const (
	TierSafe   Tier = "safe"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Classify maps a raw confidence label to a Tier and a risky flag.
// Matching is case-insensitive and substring-based, first match wins:
//
//	absent/empty                   → safe, not risky
//	"extremely_high" or "high"     → high, risky
//	"medium"                       → medium, risky
//	"low"                          → low, not risky
//	anything else                  → safe, not risky
//
// Pure and total: there are no failure cases.
func Classify(label string) (Tier, bool) {
	if label == "" {
		return TierSafe, false
	}
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "extremely_high") || strings.Contains(lower, "high"):
		return TierHigh, true
	case strings.Contains(lower, "medium"):
		return TierMedium, true
	case strings.Contains(lower, "low"):
		return TierLow, false
	default:
		return TierSafe, false
	}
}
