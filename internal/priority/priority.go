package priority

import (
	"fmt"
	"time"

	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/policy"
)

// ClinicalSignals are the severity inputs to the urgency score
type ClinicalSignals struct {
	PainLevel                   int  `json:"pain_level"`                    // 0-10 scale
	ProgressionRisk             bool `json:"progression_risk"`              // documented risk of deterioration
	ConservativeTreatmentMonths int  `json:"conservative_treatment_months"` // failed conservative care
}

// Assessment is the computed priority for a case
type Assessment struct {
	UrgencyScore int                 `json:"urgency_score"`
	Tier         domain.PriorityTier `json:"tier"`
	SLADuration  time.Duration       `json:"sla_duration"`
	Deadline     time.Time           `json:"deadline"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Urgency weights. Pain dominates; progression risk and failed
// conservative care each contribute a capped block.
const (
	painWeight               = 4  // 0-10 scale -> 0-40 points
	progressionRiskPoints    = 30 // flag contribution
	treatmentMonthPoints     = 5  // per month of failed conservative care
	treatmentContributionCap = 30
)

// Tier thresholds
const (
	highTierThreshold   = 70
	mediumTierThreshold = 40
)

// ComputeUrgency derives the 0-100 urgency score from clinical
// signals. The score is monotone in every input.
func ComputeUrgency(signals ClinicalSignals) (int, error) {
	if signals.PainLevel < 0 || signals.PainLevel > 10 {
		return 0, fmt.Errorf("pain level must be on the 0-10 scale, got %d", signals.PainLevel)
	}
	if signals.ConservativeTreatmentMonths < 0 {
		return 0, fmt.Errorf("treatment duration must not be negative, got %d", signals.ConservativeTreatmentMonths)
	}

	score := signals.PainLevel * painWeight

	if signals.ProgressionRisk {
		score += progressionRiskPoints
	}

	treatment := signals.ConservativeTreatmentMonths * treatmentMonthPoints
	if treatment > treatmentContributionCap {
		treatment = treatmentContributionCap
	}
	score += treatment

	return score, nil
}

// TierFor maps an urgency score to a priority tier
func TierFor(score int) domain.PriorityTier {
	switch {
	case score >= highTierThreshold:
		return domain.PriorityTierHigh
	case score >= mediumTierThreshold:
		return domain.PriorityTierMedium
	default:
		return domain.PriorityTierLow
	}
}

// Compute produces a full assessment: urgency, tier, and the payer
// SLA deadline anchored at assessment time
func Compute(signals ClinicalSignals, snap *policy.Snapshot, payerCode, procedureCategory string, now time.Time) (Assessment, error) {
	score, err := ComputeUrgency(signals)
	if err != nil {
		return Assessment{}, err
	}

	sla := snap.ResponseSLA(payerCode, procedureCategory)

	return Assessment{
		UrgencyScore: score,
		Tier:         TierFor(score),
		SLADuration:  sla,
		Deadline:     now.Add(sla),
		CreatedAt:    now,
	}, nil
}

// TimeRemaining returns the time left before the deadline, negative
// once breached
func TimeRemaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}

// Breached reports whether the deadline has passed
func Breached(deadline, now time.Time) bool {
	return TimeRemaining(deadline, now) <= 0
}
