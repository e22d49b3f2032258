package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/meridian-rcm/platform/internal/confidence"
	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
)

func newTestCase(t *testing.T) *Case {
	t.Helper()
	c, err := NewCase("PAT-1001", EncounterTypeProcedure, "DR-SMITH", "BCBS-TX", "spine_surgery")
	if err != nil {
		t.Fatalf("Failed to create case: %v", err)
	}
	return c
}

// TestNewCase tests case creation and validation
func TestNewCase(t *testing.T) {
	c := newTestCase(t)

	if c.Status != CaseStatusNew {
		t.Errorf("Expected status new, got %s", c.Status)
	}
	if c.CaseNumber == "" {
		t.Error("Expected a case number")
	}
	if len(c.Events) != 1 || c.Events[0].Type != CaseEventTypeCreated {
		t.Error("Expected a creation event")
	}

	tests := []struct {
		name       string
		patientRef string
		encounter  EncounterType
		provider   string
		payer      string
		category   string
	}{
		{"Missing patient", "", EncounterTypeProcedure, "DR-SMITH", "BCBS-TX", "spine_surgery"},
		{"Missing provider", "PAT-1001", EncounterTypeProcedure, "", "BCBS-TX", "spine_surgery"},
		{"Missing payer", "PAT-1001", EncounterTypeProcedure, "DR-SMITH", "", "spine_surgery"},
		{"Missing category", "PAT-1001", EncounterTypeProcedure, "DR-SMITH", "BCBS-TX", ""},
		{"Bad encounter type", "PAT-1001", EncounterType("telepathy"), "DR-SMITH", "BCBS-TX", "spine_surgery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCase(tt.patientRef, tt.encounter, tt.provider, tt.payer, tt.category); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestApplyEligibility tests eligibility outcome routing
func TestApplyEligibility(t *testing.T) {
	tests := []struct {
		name       string
		covered    bool
		paRequired bool
		tier       confidence.Tier
		want       CaseStatus
		wantFlag   bool
	}{
		{"Covered no PA", true, false, confidence.TierHigh, CaseStatusEligible, false},
		{"Covered PA required", true, true, confidence.TierHigh, CaseStatusEligiblePARequired, false},
		{"Not covered", false, false, confidence.TierHigh, CaseStatusNotEligible, false},
		{"Medium confidence flags review", true, false, confidence.TierMedium, CaseStatusEligible, true},
		{"Low confidence forces review", true, false, confidence.TierLow, CaseStatusPAReview, true},
		{"Low confidence overrides not covered", false, false, confidence.TierLow, CaseStatusPAReview, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCase(t)
			if err := c.ApplyEligibility(tt.covered, tt.paRequired, tt.tier, "agent"); err != nil {
				t.Fatalf("Failed to apply eligibility: %v", err)
			}
			if c.Status != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, c.Status)
			}
			if c.ReviewFlag != tt.wantFlag {
				t.Errorf("Expected review flag %v, got %v", tt.wantFlag, c.ReviewFlag)
			}
		})
	}

	t.Run("Rejected outside new", func(t *testing.T) {
		c := newTestCase(t)
		c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
		err := c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
		if !errors.Is(err, apperrors.ErrIllegalTransition) {
			t.Errorf("Expected ErrIllegalTransition, got %v", err)
		}
	})
}

// TestBeginReview tests the gate into authorization review
func TestBeginReview(t *testing.T) {
	c := newTestCase(t)
	c.ApplyEligibility(true, true, confidence.TierHigh, "agent")

	if err := c.BeginReview(nil, "agent"); err == nil {
		t.Error("Expected error when procedure is not resolved")
	}

	if err := c.SetProcedure("22633", "Lumbar fusion", confidence.TierHigh); err != nil {
		t.Fatalf("Failed to set procedure: %v", err)
	}

	err := c.BeginReview([]string{"imaging_report"}, "agent")
	if !errors.Is(err, apperrors.ErrMissingDocument) {
		t.Errorf("Expected ErrMissingDocument, got %v", err)
	}
	if c.Status != CaseStatusEligiblePARequired {
		t.Errorf("Status must be unchanged after blocked transition, got %s", c.Status)
	}
	if c.BlockingReason == "" {
		t.Error("Expected a blocking reason for remediation guidance")
	}

	if err := c.BeginReview(nil, "agent"); err != nil {
		t.Fatalf("Failed to begin review: %v", err)
	}
	if c.Status != CaseStatusPAReview {
		t.Errorf("Expected pa_review, got %s", c.Status)
	}
	if c.BlockingReason != "" {
		t.Error("Blocking reason must clear on successful transition")
	}
}

// TestSubmit tests submission paths and the document gate
func TestSubmit(t *testing.T) {
	t.Run("Direct from eligible", func(t *testing.T) {
		c := newTestCase(t)
		c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
		if err := c.Submit(nil, "agent"); err != nil {
			t.Fatalf("Failed to submit: %v", err)
		}
		if c.Status != CaseStatusPASubmitted {
			t.Errorf("Expected pa_submitted, got %s", c.Status)
		}
	})

	t.Run("Blocked by missing document", func(t *testing.T) {
		c := newTestCase(t)
		c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
		err := c.Submit([]string{"physician_referral"}, "agent")
		if !errors.Is(err, apperrors.ErrMissingDocument) {
			t.Errorf("Expected ErrMissingDocument, got %v", err)
		}
		if c.Status != CaseStatusEligible {
			t.Errorf("Status must be unchanged, got %s", c.Status)
		}
	})

	t.Run("Rejected from new", func(t *testing.T) {
		c := newTestCase(t)
		err := c.Submit(nil, "agent")
		if !errors.Is(err, apperrors.ErrIllegalTransition) {
			t.Errorf("Expected ErrIllegalTransition, got %v", err)
		}
	})
}

// TestPayerResponseAndAppeal tests the terminal states and the appeal path
func TestPayerResponseAndAppeal(t *testing.T) {
	c := newTestCase(t)
	c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
	c.Submit(nil, "agent")

	if err := c.RecordPayerResponse(false, "medical necessity not established", "era-feed"); err != nil {
		t.Fatalf("Failed to record payer response: %v", err)
	}
	if c.Status != CaseStatusPADenied {
		t.Errorf("Expected pa_denied, got %s", c.Status)
	}
	if !c.Status.IsTerminal() {
		t.Error("Denied must be terminal")
	}

	if err := c.Appeal("", "reviewer-1"); err == nil {
		t.Error("Expected error for empty appeal reason")
	}
	if err := c.Appeal("additional imaging attached", "reviewer-1"); err != nil {
		t.Fatalf("Failed to appeal: %v", err)
	}
	if c.Status != CaseStatusPAReview {
		t.Errorf("Expected pa_review after appeal, got %s", c.Status)
	}

	// Resubmit and approve
	if err := c.Submit(nil, "reviewer-1"); err != nil {
		t.Fatalf("Failed to resubmit: %v", err)
	}
	if err := c.RecordPayerResponse(true, "", "era-feed"); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	if c.Status != CaseStatusPAApproved {
		t.Errorf("Expected pa_approved, got %s", c.Status)
	}
	if err := c.Appeal("too late", "reviewer-1"); !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Appeal from approved must fail, got %v", err)
	}
}

// TestReject tests the reviewer's terminal disposition from review
func TestReject(t *testing.T) {
	c := newTestCase(t)

	// A not-covered determination at low confidence lands in review
	c.ApplyEligibility(false, false, confidence.TierLow, "agent")
	if c.Status != CaseStatusPAReview {
		t.Fatalf("Expected pa_review, got %s", c.Status)
	}

	if err := c.Reject("", "reviewer-1"); err == nil {
		t.Error("Expected error for empty rejection reason")
	}

	if err := c.Reject("coverage exclusion confirmed", "reviewer-1"); err != nil {
		t.Fatalf("Failed to reject: %v", err)
	}
	if c.Status != CaseStatusNotEligible {
		t.Errorf("Expected not_eligible, got %s", c.Status)
	}
	if !c.Status.IsTerminal() {
		t.Error("Rejected must be terminal")
	}
	if c.BlockingReason != "coverage exclusion confirmed" {
		t.Errorf("Expected the reviewer's reason recorded, got %q", c.BlockingReason)
	}

	// No appeal: there is no payer denial to contest
	if err := c.Appeal("changed my mind", "reviewer-1"); !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Appeal after rejection must fail, got %v", err)
	}

	t.Run("Rejected outside review", func(t *testing.T) {
		c := newTestCase(t)
		c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
		if err := c.Reject("no", "reviewer-1"); !errors.Is(err, apperrors.ErrIllegalTransition) {
			t.Errorf("Expected ErrIllegalTransition, got %v", err)
		}
	})
}

// TestCaseNumberUniqueness tests that rapid creates do not collide
func TestCaseNumberUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		c := newTestCase(t)
		if seen[c.CaseNumber] {
			t.Fatalf("Duplicate case number %s after %d creates", c.CaseNumber, i)
		}
		seen[c.CaseNumber] = true
	}
}

// TestProcedureFrozenAfterSubmission tests procedure immutability
func TestProcedureFrozenAfterSubmission(t *testing.T) {
	c := newTestCase(t)
	c.ApplyEligibility(true, false, confidence.TierHigh, "agent")
	if err := c.SetProcedure("64483", "Epidural injection", confidence.TierHigh); err != nil {
		t.Fatalf("Failed to set procedure: %v", err)
	}
	c.Submit(nil, "agent")

	err := c.SetProcedure("22633", "Lumbar fusion", confidence.TierHigh)
	if !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
	if c.ProcedureCode != "64483" {
		t.Error("Procedure must be unchanged after rejected update")
	}
}

// TestApplyPriority tests SLA deadline immutability outside re-triage
func TestApplyPriority(t *testing.T) {
	c := newTestCase(t)
	deadline := time.Now().Add(5 * 24 * time.Hour)

	if err := c.ApplyPriority(74, PriorityTierHigh, deadline, false, "triage"); err != nil {
		t.Fatalf("Failed to apply priority: %v", err)
	}
	if c.UrgencyScore != 74 || c.PriorityTier != PriorityTierHigh {
		t.Error("Priority assessment not recorded")
	}

	if err := c.ApplyPriority(20, PriorityTierLow, deadline.Add(time.Hour), false, "triage"); err == nil {
		t.Error("Expected error when changing SLA deadline without re-triage")
	}

	later := deadline.Add(48 * time.Hour)
	if err := c.ApplyPriority(20, PriorityTierLow, later, true, "triage"); err != nil {
		t.Fatalf("Failed to re-triage: %v", err)
	}
	if !c.SLADeadline.Equal(later) {
		t.Error("Re-triage must move the SLA deadline")
	}
}

// TestMarkSLABreached tests that the breach flag raises once
func TestMarkSLABreached(t *testing.T) {
	c := newTestCase(t)

	if !c.MarkSLABreached() {
		t.Error("First breach mark must report true")
	}
	if c.MarkSLABreached() {
		t.Error("Repeated breach mark must report false")
	}
	if !c.SLABreached {
		t.Error("Case must be flagged breached")
	}
}

// TestUpdatedAtMonotonic tests the last-updated timestamp never goes backward
func TestUpdatedAtMonotonic(t *testing.T) {
	c := newTestCase(t)
	prev := c.UpdatedAt

	for i := 0; i < 5; i++ {
		c.Assign("reviewer-1", "admin")
		if c.UpdatedAt.Before(prev) {
			t.Fatal("UpdatedAt went backward")
		}
		prev = c.UpdatedAt
	}
}

// TestDomainEvents tests that domain events are collected and cleared
func TestDomainEvents(t *testing.T) {
	c := newTestCase(t)
	c.ApplyEligibility(true, false, confidence.TierHigh, "agent")

	events := c.GetDomainEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 domain events, got %d", len(events))
	}
	if events[0].Type != string(CaseEventTypeCreated) {
		t.Errorf("Expected created event first, got %s", events[0].Type)
	}

	if remaining := c.GetDomainEvents(); len(remaining) != 0 {
		t.Error("Domain events must clear after retrieval")
	}
}
