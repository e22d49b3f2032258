package confidence

import (
	"errors"
	"testing"

	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
)

// TestClassify tests tier boundaries
func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		tier  Tier
	}{
		{"Zero", 0, TierLow},
		{"Just below medium", 59.9, TierLow},
		{"Medium boundary", 60, TierMedium},
		{"Mid medium", 75, TierMedium},
		{"Just below high", 79.9, TierMedium},
		{"High boundary", 80, TierHigh},
		{"Maximum", 100, TierHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, err := Classify(tt.score)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if tier != tt.tier {
				t.Errorf("Expected tier %s for score %.1f, got %s", tt.tier, tt.score, tier)
			}
		})
	}
}

// TestClassifyOutOfRange tests that out-of-range scores are rejected
func TestClassifyOutOfRange(t *testing.T) {
	for _, score := range []float64{-0.01, -50, 100.01, 200} {
		_, err := Classify(score)
		if err == nil {
			t.Errorf("Expected error for score %.2f", score)
			continue
		}
		if !errors.Is(err, apperrors.ErrInvalidScore) {
			t.Errorf("Expected ErrInvalidScore for score %.2f, got %v", score, err)
		}
	}
}

// TestClassifyDeterministic tests that repeated classification is stable
func TestClassifyDeterministic(t *testing.T) {
	for score := 0.0; score <= 100.0; score += 0.5 {
		first, err := Classify(score)
		if err != nil {
			t.Fatalf("Unexpected error at %.1f: %v", score, err)
		}
		second, _ := Classify(score)
		if first != second {
			t.Fatalf("Classification not deterministic at %.1f", score)
		}
	}
}

// TestTierGating tests the automation gating helpers
func TestTierGating(t *testing.T) {
	if TierHigh.BlocksAutomation() || TierMedium.BlocksAutomation() {
		t.Error("High and Medium tiers must not block automation")
	}
	if !TierLow.BlocksAutomation() {
		t.Error("Low tier must block automation")
	}
	if TierHigh.NeedsReviewFlag() {
		t.Error("High tier must not carry a review flag")
	}
	if !TierMedium.NeedsReviewFlag() || !TierLow.NeedsReviewFlag() {
		t.Error("Medium and Low tiers must carry a review flag")
	}
}
