package confidence

import (
	"github.com/meridian-rcm/platform/internal/shared/errors"
)

// Tier classifies a 0-100 confidence score for automation gating
type Tier string

const (
	// TierHigh permits fully automated advancement
	TierHigh Tier = "high"
	// TierMedium advances automatically but carries a visible review flag
	TierMedium Tier = "medium"
	// TierLow blocks automatic advancement; a human must disposition
	TierLow Tier = "low"
)

// Tier thresholds
const (
	highThreshold   = 80
	mediumThreshold = 60
)

// Classify maps a confidence score to its tier. Scores outside [0,100]
// are rejected before any state change.
func Classify(score float64) (Tier, error) {
	if score < 0 || score > 100 {
		return "", errors.InvalidScore(score)
	}

	switch {
	case score >= highThreshold:
		return TierHigh, nil
	case score >= mediumThreshold:
		return TierMedium, nil
	default:
		return TierLow, nil
	}
}

// BlocksAutomation reports whether the tier requires a human disposition
func (t Tier) BlocksAutomation() bool {
	return t == TierLow
}

// NeedsReviewFlag reports whether the tier should be surfaced for review
// even when it does not block advancement
func (t Tier) NeedsReviewFlag() bool {
	return t == TierMedium || t == TierLow
}
