package documents

import (
	"context"
	"testing"
	"time"

	"github.com/meridian-rcm/platform/internal/policy"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

func testSnapshot(t *testing.T) *policy.Snapshot {
	t.Helper()
	store := policy.NewStore()
	err := store.UpsertPolicy(policy.PayerPolicy{
		PayerCode:         "UHC",
		ProcedureCategory: "spine_surgery",
		PARequired:        true,
		ResponseSLA:       3 * 24 * time.Hour,
		RequiredDocuments: []string{"imaging_report", "conservative_treatment_notes"},
	})
	if err != nil {
		t.Fatalf("Failed to seed policy: %v", err)
	}
	return store.Snapshot()
}

// TestCompleteness tests the missing set and the completeness gate
func TestCompleteness(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore())
	caseID := types.NewID()

	if err := tracker.InitRequirements(ctx, caseID, testSnapshot(t), "UHC", "spine_surgery"); err != nil {
		t.Fatalf("Failed to init requirements: %v", err)
	}

	missing, err := tracker.Missing(ctx, caseID)
	if err != nil {
		t.Fatalf("Failed to get missing: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("Expected 2 missing documents, got %v", missing)
	}
	if missing[0] != "conservative_treatment_notes" || missing[1] != "imaging_report" {
		t.Errorf("Expected sorted missing set, got %v", missing)
	}

	if err := tracker.Record(ctx, caseID, "imaging_report"); err != nil {
		t.Fatalf("Failed to record document: %v", err)
	}
	if complete, _ := tracker.IsComplete(ctx, caseID); complete {
		t.Error("Case must not be complete with one document outstanding")
	}

	if err := tracker.Record(ctx, caseID, "conservative_treatment_notes"); err != nil {
		t.Fatalf("Failed to record document: %v", err)
	}
	if complete, _ := tracker.IsComplete(ctx, caseID); !complete {
		t.Error("Case must be complete with all required documents retrieved")
	}
}

// TestUnsolicitedDocument tests that extra documents never affect completeness
func TestUnsolicitedDocument(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore())
	caseID := types.NewID()

	if err := tracker.InitRequirements(ctx, caseID, testSnapshot(t), "UHC", "spine_surgery"); err != nil {
		t.Fatalf("Failed to init requirements: %v", err)
	}

	if err := tracker.Record(ctx, caseID, "family_photo"); err != nil {
		t.Fatalf("Unsolicited document must be accepted: %v", err)
	}

	missing, _ := tracker.Missing(ctx, caseID)
	if len(missing) != 2 {
		t.Errorf("Unsolicited document must not affect the missing set, got %v", missing)
	}

	checklist, err := tracker.Checklist(ctx, caseID)
	if err != nil {
		t.Fatalf("Failed to get checklist: %v", err)
	}
	if len(checklist) != 3 {
		t.Errorf("Unsolicited document must still be stored, got %d entries", len(checklist))
	}
}

// TestExpireReopensRequirement tests that superseding a document reopens its requirement
func TestExpireReopensRequirement(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore())
	caseID := types.NewID()

	if err := tracker.InitRequirements(ctx, caseID, testSnapshot(t), "UHC", "spine_surgery"); err != nil {
		t.Fatalf("Failed to init requirements: %v", err)
	}
	tracker.Record(ctx, caseID, "imaging_report")
	tracker.Record(ctx, caseID, "conservative_treatment_notes")

	if complete, _ := tracker.IsComplete(ctx, caseID); !complete {
		t.Fatal("Expected complete before expiry")
	}

	if err := tracker.Expire(ctx, caseID, "imaging_report"); err != nil {
		t.Fatalf("Failed to expire document: %v", err)
	}

	missing, _ := tracker.Missing(ctx, caseID)
	if len(missing) != 1 || missing[0] != "imaging_report" {
		t.Errorf("Expected imaging_report reopened, got %v", missing)
	}

	if err := tracker.Expire(ctx, caseID, "never_recorded"); err == nil {
		t.Error("Expected error when expiring an unknown document type")
	}
}

// TestReinitPreservesStatus tests that re-seeding keeps retrieval status
func TestReinitPreservesStatus(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(NewMemoryStore())
	caseID := types.NewID()
	snap := testSnapshot(t)

	tracker.InitRequirements(ctx, caseID, snap, "UHC", "spine_surgery")
	tracker.Record(ctx, caseID, "imaging_report")

	if err := tracker.InitRequirements(ctx, caseID, snap, "UHC", "spine_surgery"); err != nil {
		t.Fatalf("Failed to re-init requirements: %v", err)
	}

	missing, _ := tracker.Missing(ctx, caseID)
	if len(missing) != 1 || missing[0] != "conservative_treatment_notes" {
		t.Errorf("Retrieved status must survive re-init, got %v", missing)
	}
}
