package policy

import (
	"testing"
	"time"
)

// TestSnapshotIsolation tests that updates after a snapshot do not leak into it
func TestSnapshotIsolation(t *testing.T) {
	store := NewStore()
	err := store.UpsertPolicy(PayerPolicy{
		PayerCode:         "BCBS-TX",
		ProcedureCategory: "spine_surgery",
		PARequired:        true,
		ResponseSLA:       5 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to upsert policy: %v", err)
	}

	snap := store.Snapshot()

	err = store.UpsertPolicy(PayerPolicy{
		PayerCode:         "BCBS-TX",
		ProcedureCategory: "spine_surgery",
		PARequired:        false,
		ResponseSLA:       time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to update policy: %v", err)
	}

	if !snap.PARequired("BCBS-TX", "spine_surgery") {
		t.Error("Snapshot must retain the policy as of snapshot time")
	}
	if snap.ResponseSLA("BCBS-TX", "spine_surgery") != 5*24*time.Hour {
		t.Error("Snapshot SLA changed after store update")
	}

	fresh := store.Snapshot()
	if fresh.PARequired("BCBS-TX", "spine_surgery") {
		t.Error("Fresh snapshot must see the updated policy")
	}
	if fresh.Version <= snap.Version {
		t.Error("Version must advance on update")
	}
}

// TestUnknownPayerDefaults tests conservative defaults for unknown payers
func TestUnknownPayerDefaults(t *testing.T) {
	snap := NewStore().Snapshot()

	if !snap.PARequired("UNKNOWN", "spine_surgery") {
		t.Error("Unknown payer must default to requiring prior authorization")
	}
	if snap.ResponseSLA("UNKNOWN", "spine_surgery") != DefaultResponseSLA {
		t.Error("Unknown payer must get the default response SLA")
	}
	if docs := snap.RequiredDocuments("UNKNOWN", "spine_surgery"); docs != nil {
		t.Errorf("Unknown payer must have no document requirements, got %v", docs)
	}
	if _, ok := snap.AllowedAmount("UNKNOWN", "22633"); ok {
		t.Error("Unknown payer must have no fee schedule entry")
	}
}

// TestUpsertValidation tests rejected inputs
func TestUpsertValidation(t *testing.T) {
	store := NewStore()

	if err := store.UpsertPolicy(PayerPolicy{ProcedureCategory: "spine_surgery"}); err == nil {
		t.Error("Expected error for missing payer code")
	}
	if err := store.UpsertFeeSchedule(FeeScheduleEntry{PayerCode: "UHC"}); err == nil {
		t.Error("Expected error for missing procedure code")
	}
	if err := store.UpsertFeeSchedule(FeeScheduleEntry{PayerCode: "UHC", ProcedureCode: "22633", AllowedAmount: -1}); err == nil {
		t.Error("Expected error for negative allowed amount")
	}
}

// TestSeedDefaults tests that the pilot seed loads and is queryable
func TestSeedDefaults(t *testing.T) {
	store := NewStore()
	if err := SeedDefaults(store); err != nil {
		t.Fatalf("Failed to seed defaults: %v", err)
	}

	snap := store.Snapshot()

	if snap.PARequired("BCBS-TX", "physical_therapy") {
		t.Error("BCBS-TX physical therapy must not require prior authorization")
	}
	if !snap.PARequired("UHC", "spine_surgery") {
		t.Error("UHC spine surgery must require prior authorization")
	}

	docs := snap.RequiredDocuments("UHC", "spine_surgery")
	if len(docs) != 3 {
		t.Errorf("Expected 3 required documents for UHC spine surgery, got %d", len(docs))
	}

	amount, ok := snap.AllowedAmount("MEDICARE", "22633")
	if !ok {
		t.Fatal("Expected fee schedule entry for MEDICARE 22633")
	}
	if amount.Cents() != 1985300 {
		t.Errorf("Expected 1985300 cents, got %d", amount.Cents())
	}
}
