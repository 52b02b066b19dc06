package session

import (
	"math"

	"github.com/forgehq/forge/internal/models"
)

// contextUsageThreshold is the fraction of the context window at which
// a WARNING is emitted, one step before compaction's own trigger so
// the operator sees the warning before any history is summarized.
const contextUsageThreshold = 0.8

// approxTokens estimates token usage as total history characters / 4.
func approxTokens(history []models.Turn) int {
	chars := 0
	for _, t := range history {
		chars += len(t.Text) + len(t.Reasoning)
		for _, r := range t.Results {
			chars += len(r.Content)
		}
	}
	return chars / 4
}

// contextUsageWarning computes the usage fraction and reports whether a
// warning should fire, rounding usage_percent to two decimal places.
// Suppressed entirely when contextWindowSize <= 0 to avoid a
// divide-by-zero.
func contextUsageWarning(history []models.Turn, contextWindowSize int) (approx int, usagePercent float64, fire bool) {
	if contextWindowSize <= 0 {
		return 0, 0, false
	}
	approx = approxTokens(history)
	fraction := float64(approx) / float64(contextWindowSize)
	usagePercent = math.Round(fraction*100*100) / 100
	return approx, usagePercent, fraction >= contextUsageThreshold
}
