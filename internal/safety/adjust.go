package safety

import "strings"

// Confidence computes the per-violation confidence for a matcher that hit
// matchCount times: min(1, base + min(0.1, matchCount*0.02)). Confidence
// saturates quickly with repeated matches and never exceeds 1.
func Confidence(base float64, matchCount int) float64 {
	bonus := float64(matchCount) * 0.02
	if bonus > 0.1 {
		bonus = 0.1
	}
	c := base + bonus
	if c > 1 {
		c = 1
	}
	return c
}

var contextSofteners = []string{"medical", "educational", "academic", "research"}

// SoftContext reports whether the request context names a discourse where
// the false-positive cost is lower (clinical, educational, research).
func SoftContext(context string) bool {
	lc := strings.ToLower(context)
	for _, marker := range contextSofteners {
		if strings.Contains(lc, marker) {
			return true
		}
	}
	return false
}

// AdjustForContext downgrades violation severity one step for soft contexts:
// critical drops to high with confidence scaled by 0.7, high drops to medium
// with confidence scaled by 0.8. It must be applied exactly once, after all
// categories have been scanned.
func AdjustForContext(violations []Violation, context string) {
	if context == "" || !SoftContext(context) {
		return
	}
	for i := range violations {
		switch violations[i].Severity {
		case SeverityCritical:
			violations[i].Severity = SeverityHigh
			violations[i].Confidence *= 0.7
		case SeverityHigh:
			violations[i].Severity = SeverityMedium
			violations[i].Confidence *= 0.8
		}
	}
}
