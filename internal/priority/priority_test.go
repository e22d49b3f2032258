package priority

import (
	"testing"
	"time"

	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/policy"
)

// TestComputeUrgency tests the weighted urgency score
func TestComputeUrgency(t *testing.T) {
	tests := []struct {
		name    string
		signals ClinicalSignals
		want    int
	}{
		{"No signals", ClinicalSignals{}, 0},
		{"Pain only", ClinicalSignals{PainLevel: 7}, 28},
		{"Max pain", ClinicalSignals{PainLevel: 10}, 40},
		{"Progression risk only", ClinicalSignals{ProgressionRisk: true}, 30},
		{"Treatment months", ClinicalSignals{ConservativeTreatmentMonths: 4}, 20},
		{"Treatment capped", ClinicalSignals{ConservativeTreatmentMonths: 12}, 30},
		{"All maxed", ClinicalSignals{PainLevel: 10, ProgressionRisk: true, ConservativeTreatmentMonths: 12}, 100},
		{"Typical surgical candidate", ClinicalSignals{PainLevel: 8, ProgressionRisk: true, ConservativeTreatmentMonths: 6}, 92},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeUrgency(tt.signals)
			if err != nil {
				t.Fatalf("Failed to compute urgency: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected score %d, got %d", tt.want, got)
			}
		})
	}

	t.Run("Invalid inputs", func(t *testing.T) {
		if _, err := ComputeUrgency(ClinicalSignals{PainLevel: 11}); err == nil {
			t.Error("Expected error for pain level above scale")
		}
		if _, err := ComputeUrgency(ClinicalSignals{PainLevel: -1}); err == nil {
			t.Error("Expected error for negative pain level")
		}
		if _, err := ComputeUrgency(ClinicalSignals{ConservativeTreatmentMonths: -2}); err == nil {
			t.Error("Expected error for negative treatment duration")
		}
	})
}

// TestUrgencyMonotone tests that the score never drops as inputs grow
func TestUrgencyMonotone(t *testing.T) {
	prev := -1
	for pain := 0; pain <= 10; pain++ {
		score, err := ComputeUrgency(ClinicalSignals{PainLevel: pain})
		if err != nil {
			t.Fatalf("Failed at pain %d: %v", pain, err)
		}
		if score < prev {
			t.Fatalf("Score dropped from %d to %d at pain %d", prev, score, pain)
		}
		prev = score
	}

	prev = -1
	for months := 0; months <= 12; months++ {
		score, _ := ComputeUrgency(ClinicalSignals{ConservativeTreatmentMonths: months})
		if score < prev {
			t.Fatalf("Score dropped from %d to %d at %d months", prev, score, months)
		}
		prev = score
	}
}

// TestTierFor tests tier boundaries
func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  domain.PriorityTier
	}{
		{0, domain.PriorityTierLow},
		{39, domain.PriorityTierLow},
		{40, domain.PriorityTierMedium},
		{69, domain.PriorityTierMedium},
		{70, domain.PriorityTierHigh},
		{100, domain.PriorityTierHigh},
	}

	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("Expected tier %s for score %d, got %s", tt.want, tt.score, got)
		}
	}
}

// TestCompute tests the full assessment with the payer SLA lookup
func TestCompute(t *testing.T) {
	store := policy.NewStore()
	store.UpsertPolicy(policy.PayerPolicy{
		PayerCode:         "UHC",
		ProcedureCategory: "spine_surgery",
		PARequired:        true,
		ResponseSLA:       3 * 24 * time.Hour,
	})
	snap := store.Snapshot()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	signals := ClinicalSignals{PainLevel: 9, ProgressionRisk: true, ConservativeTreatmentMonths: 3}

	a, err := Compute(signals, snap, "UHC", "spine_surgery", now)
	if err != nil {
		t.Fatalf("Failed to compute assessment: %v", err)
	}

	if a.UrgencyScore != 81 {
		t.Errorf("Expected urgency 81, got %d", a.UrgencyScore)
	}
	if a.Tier != domain.PriorityTierHigh {
		t.Errorf("Expected high tier, got %s", a.Tier)
	}
	if a.SLADuration != 3*24*time.Hour {
		t.Errorf("Expected 72h SLA, got %s", a.SLADuration)
	}
	if !a.Deadline.Equal(now.Add(3 * 24 * time.Hour)) {
		t.Errorf("Deadline must anchor at assessment time, got %s", a.Deadline)
	}

	// Unknown payer falls back to the default SLA
	b, err := Compute(signals, snap, "UNKNOWN", "spine_surgery", now)
	if err != nil {
		t.Fatalf("Failed to compute with unknown payer: %v", err)
	}
	if b.SLADuration != policy.DefaultResponseSLA {
		t.Errorf("Expected default SLA, got %s", b.SLADuration)
	}
}

// TestTimeRemaining tests the countdown and the breach condition
func TestTimeRemaining(t *testing.T) {
	deadline := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)

	checkpoints := []struct {
		now       time.Time
		remaining time.Duration
		breached  bool
	}{
		{deadline.Add(-48 * time.Hour), 48 * time.Hour, false},
		{deadline.Add(-time.Minute), time.Minute, false},
		{deadline, 0, true},
		{deadline.Add(time.Hour), -time.Hour, true},
	}

	prev := TimeRemaining(deadline, checkpoints[0].now)
	for i, cp := range checkpoints {
		got := TimeRemaining(deadline, cp.now)
		if got != cp.remaining {
			t.Errorf("Expected remaining %s at checkpoint %d, got %s", cp.remaining, i, got)
		}
		if got > prev {
			t.Error("Remaining time must be non-increasing as time advances")
		}
		if Breached(deadline, cp.now) != cp.breached {
			t.Errorf("Expected breached=%v at checkpoint %d", cp.breached, i)
		}
		prev = got
	}
}
