package reconciliation

import (
	"context"
	"testing"

	"github.com/meridian-rcm/platform/internal/policy"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// TestClassify tests the pure classification function
func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		expected     types.Money
		posted       types.Money
		toleranceBps int
		wantVariance types.Money
		wantClass    Classification
	}{
		{"Exact match zero tolerance", 1000, 1000, 0, 0, ClassificationExact},
		{"Underpayment", 1000, 850, 0, -150, ClassificationUnderpayment},
		{"Overpayment beyond tolerance", 1000, 1200, 500, 200, ClassificationOverpayment},
		{"Underpayment within tolerance", 1000, 960, 500, -40, ClassificationExact},
		{"Overpayment within tolerance", 1000, 1050, 500, 50, ClassificationExact},
		{"One cent under, zero tolerance", 1000, 999, 0, -1, ClassificationUnderpayment},
		{"Zero expected exact", 0, 0, 0, 0, ClassificationExact},
		{"Zero expected overpaid", 0, 500, 500, 500, ClassificationOverpayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variance, class, err := Classify(tt.expected, tt.posted, tt.toleranceBps)
			if err != nil {
				t.Fatalf("Failed to classify: %v", err)
			}
			if variance != tt.wantVariance {
				t.Errorf("Expected variance %d, got %d", tt.wantVariance, variance)
			}
			if class != tt.wantClass {
				t.Errorf("Expected %s, got %s", tt.wantClass, class)
			}
		})
	}

	t.Run("Invalid inputs", func(t *testing.T) {
		if _, _, err := Classify(-100, 100, 0); err == nil {
			t.Error("Expected error for negative expected amount")
		}
		if _, _, err := Classify(100, 100, -1); err == nil {
			t.Error("Expected error for negative tolerance")
		}
	})
}

// TestReconcile tests persistence and immutability of records
func TestReconcile(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, nil)
	caseID := types.NewID()

	rec, err := engine.Reconcile(ctx, caseID, "ERA-100", "BCBS-TX", "BCBS-TX/22633", 2845000, 2700000, 0)
	if err != nil {
		t.Fatalf("Failed to reconcile: %v", err)
	}
	if rec.Classification != ClassificationUnderpayment {
		t.Errorf("Expected underpayment, got %s", rec.Classification)
	}
	if rec.Variance != -145000 {
		t.Errorf("Expected variance -145000, got %d", rec.Variance)
	}

	// Same (case, remittance) pair may not be reconciled twice
	if _, err := engine.Reconcile(ctx, caseID, "ERA-100", "BCBS-TX", "BCBS-TX/22633", 2845000, 2845000, 0); err == nil {
		t.Error("Duplicate remittance must be rejected")
	}

	t.Run("Validation", func(t *testing.T) {
		if _, err := engine.Reconcile(ctx, types.ID(""), "ERA-101", "BCBS-TX", "ref", 100, 100, 0); err == nil {
			t.Error("Expected error for zero case ID")
		}
		if _, err := engine.Reconcile(ctx, caseID, "", "BCBS-TX", "ref", 100, 100, 0); err == nil {
			t.Error("Expected error for empty remittance ID")
		}
	})
}

// TestCorrect tests that corrections reference the original record
func TestCorrect(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store, nil)
	caseID := types.NewID()

	original, err := engine.Reconcile(ctx, caseID, "ERA-200", "UHC", "UHC/63047", 1045000, 900000, 0)
	if err != nil {
		t.Fatalf("Failed to reconcile: %v", err)
	}

	correction, err := engine.Correct(ctx, original.ID, 1045000, 0)
	if err != nil {
		t.Fatalf("Failed to correct: %v", err)
	}

	if correction.CorrectsRecordID == nil || *correction.CorrectsRecordID != original.ID {
		t.Error("Correction must reference the original record")
	}
	if correction.Classification != ClassificationExact {
		t.Errorf("Expected exact after correction, got %s", correction.Classification)
	}

	// Original is untouched
	stored, err := store.FindByID(ctx, original.ID)
	if err != nil {
		t.Fatalf("Failed to load original: %v", err)
	}
	if stored.Classification != ClassificationUnderpayment || stored.Posted != 900000 {
		t.Error("Original record must be immutable")
	}
}

// TestReconcileBatch tests partial-failure semantics
func TestReconcileBatch(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewMemoryStore(), nil)

	policies := policy.NewStore()
	if err := policy.SeedDefaults(policies); err != nil {
		t.Fatalf("Failed to seed policies: %v", err)
	}
	snap := policies.Snapshot()

	entries := []BatchEntry{
		{CaseID: types.NewID(), RemittanceID: "ERA-301", PayerCode: "BCBS-TX", ProcedureCode: "22633", Posted: 2845000},
		{CaseID: types.NewID(), RemittanceID: "ERA-302", PayerCode: "UHC", ProcedureCode: "63047", Posted: 1000000},
		{CaseID: types.NewID(), RemittanceID: "ERA-303", PayerCode: "UHC", ProcedureCode: "99999", Posted: 50000}, // no contract entry
		{CaseID: types.NewID(), RemittanceID: "ERA-304", PayerCode: "MEDICARE", ProcedureCode: "", Posted: 50000}, // malformed
		{CaseID: types.NewID(), RemittanceID: "ERA-305", PayerCode: "MEDICARE", ProcedureCode: "22633", Posted: 2100000},
	}

	result := engine.ReconcileBatch(ctx, entries, snap, 0)

	if len(result.Records) != 3 {
		t.Errorf("Expected 3 successful records, got %d", len(result.Records))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Expected 2 entry errors, got %d", len(result.Errors))
	}

	failed := map[string]bool{}
	for _, e := range result.Errors {
		if e.Reason == "" {
			t.Error("Entry error must carry a reason")
		}
		failed[e.RemittanceID] = true
	}
	if !failed["ERA-303"] || !failed["ERA-304"] {
		t.Errorf("Expected ERA-303 and ERA-304 to fail, got %v", failed)
	}

	for _, rec := range result.Records {
		if rec.RemittanceID == "ERA-301" && rec.Classification != ClassificationExact {
			t.Errorf("ERA-301 must be exact, got %s", rec.Classification)
		}
		if rec.RemittanceID == "ERA-302" && rec.Classification != ClassificationUnderpayment {
			t.Errorf("ERA-302 must be underpayment, got %s", rec.Classification)
		}
		if rec.RemittanceID == "ERA-305" && rec.Classification != ClassificationOverpayment {
			t.Errorf("ERA-305 must be overpayment, got %s", rec.Classification)
		}
	}
}
