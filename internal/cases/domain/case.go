package domain

import (
	"fmt"
	"time"

	"github.com/meridian-rcm/platform/internal/confidence"
	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// EncounterType defines the type of patient encounter
type EncounterType string

const (
	EncounterTypeInpatient  EncounterType = "inpatient"
	EncounterTypeOutpatient EncounterType = "outpatient"
	EncounterTypeProcedure  EncounterType = "procedure"
)

// CaseStatus defines the lifecycle status of a case
type CaseStatus string

const (
	CaseStatusNew                CaseStatus = "new"
	CaseStatusEligible           CaseStatus = "eligible"
	CaseStatusEligiblePARequired CaseStatus = "eligible_pa_required"
	CaseStatusNotEligible        CaseStatus = "not_eligible"
	CaseStatusPAReview           CaseStatus = "pa_review"
	CaseStatusPASubmitted        CaseStatus = "pa_submitted"
	CaseStatusPAApproved         CaseStatus = "pa_approved"
	CaseStatusPADenied           CaseStatus = "pa_denied"
)

// IsTerminal reports whether the status ends the lifecycle.
// A denial can still re-enter review through an explicit appeal.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusNotEligible || s == CaseStatusPAApproved || s == CaseStatusPADenied
}

// PriorityTier defines the case priority tier
type PriorityTier string

const (
	PriorityTierHigh   PriorityTier = "high"
	PriorityTierMedium PriorityTier = "medium"
	PriorityTierLow    PriorityTier = "low"
)

// Case is the aggregate root for authorization and claim processing
type Case struct {
	ID         types.ID      `json:"id"`
	CaseNumber string        `json:"case_number"`
	PatientRef string        `json:"patient_ref"`
	Encounter  EncounterType `json:"encounter_type"`
	Provider   string        `json:"provider_ref"`
	PayerCode  string        `json:"payer_code"`

	// Procedure fields, frozen once a submission has gone out
	ProcedureCategory string `json:"procedure_category"`
	ProcedureCode     string `json:"procedure_code,omitempty"`
	ProcedureName     string `json:"procedure_name,omitempty"`

	// CodingTier is the confidence tier of the latest coding
	// suggestion; it decides whether review may auto-advance
	CodingTier confidence.Tier `json:"coding_tier,omitempty"`

	Status CaseStatus `json:"status"`

	// Prioritization
	PriorityTier PriorityTier `json:"priority_tier"`
	UrgencyScore int          `json:"urgency_score"`
	SLADeadline  *time.Time   `json:"sla_deadline,omitempty"`
	SLABreached  bool         `json:"sla_breached"`

	Assignee       string `json:"assignee,omitempty"`
	ReviewFlag     bool   `json:"review_flag"`
	BlockingReason string `json:"blocking_reason,omitempty"`

	Events []CaseEvent `json:"events,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Domain events (not persisted, used for publishing)
	domainEvents []Event
}

// NewCase creates a new case with validation
func NewCase(patientRef string, encounter EncounterType, providerRef, payerCode, procedureCategory string) (*Case, error) {
	if patientRef == "" {
		return nil, fmt.Errorf("patient reference is required")
	}
	if providerRef == "" {
		return nil, fmt.Errorf("ordering provider reference is required")
	}
	if payerCode == "" {
		return nil, fmt.Errorf("payer code is required")
	}
	if procedureCategory == "" {
		return nil, fmt.Errorf("procedure category is required")
	}
	switch encounter {
	case EncounterTypeInpatient, EncounterTypeOutpatient, EncounterTypeProcedure:
	default:
		return nil, fmt.Errorf("unknown encounter type: %s", encounter)
	}

	now := time.Now()
	c := &Case{
		ID:                types.NewID(),
		CaseNumber:        generateCaseNumber(),
		PatientRef:        patientRef,
		Encounter:         encounter,
		Provider:          providerRef,
		PayerCode:         payerCode,
		ProcedureCategory: procedureCategory,
		Status:            CaseStatusNew,
		PriorityTier:      PriorityTierLow,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	c.addEvent(CaseEventTypeCreated, "", "Case created", nil)

	return c, nil
}

// SetProcedure resolves the procedure once the coding task completes,
// recording the suggestion's confidence tier. Procedure fields are
// frozen after a submission has gone out.
func (c *Case) SetProcedure(code, name string, tier confidence.Tier) error {
	if code == "" {
		return fmt.Errorf("procedure code is required")
	}
	switch c.Status {
	case CaseStatusPASubmitted, CaseStatusPAApproved, CaseStatusPADenied:
		return apperrors.IllegalTransition(string(c.Status), "set_procedure")
	}

	c.ProcedureCode = code
	c.ProcedureName = name
	c.CodingTier = tier
	c.touch()
	c.addEvent(CaseEventTypeProcedureResolved, "", fmt.Sprintf("Procedure resolved: %s", code), map[string]any{
		"procedure_code": code,
		"procedure_name": name,
		"coding_tier":    tier,
	})

	return nil
}

// ApplyEligibility applies a completed eligibility determination.
// Low-confidence determinations force manual review regardless of the
// coverage flag, so automation never outruns a human sanity check.
func (c *Case) ApplyEligibility(covered, paRequired bool, tier confidence.Tier, actor string) error {
	if c.Status != CaseStatusNew {
		return apperrors.IllegalTransition(string(c.Status), "apply_eligibility")
	}

	oldStatus := c.Status

	if tier.BlocksAutomation() {
		c.Status = CaseStatusPAReview
		c.ReviewFlag = true
		c.BlockingReason = "eligibility confidence low, manual disposition required"
	} else {
		switch {
		case !covered:
			c.Status = CaseStatusNotEligible
		case paRequired:
			c.Status = CaseStatusEligiblePARequired
		default:
			c.Status = CaseStatusEligible
		}
		if tier.NeedsReviewFlag() {
			c.ReviewFlag = true
		}
	}

	c.touch()
	c.addEvent(CaseEventTypeStatusChanged, actor, "Eligibility determined", map[string]any{
		"old_status":  oldStatus,
		"new_status":  c.Status,
		"covered":     covered,
		"pa_required": paRequired,
		"tier":        tier,
	})

	return nil
}

// BeginReview moves an authorization-required case into review once
// coding has resolved the procedure and the document set is complete
func (c *Case) BeginReview(missingDocs []string, actor string) error {
	if c.Status != CaseStatusEligiblePARequired {
		return apperrors.IllegalTransition(string(c.Status), "begin_review")
	}
	if c.ProcedureCode == "" {
		return fmt.Errorf("procedure must be resolved before review")
	}
	if len(missingDocs) > 0 {
		c.BlockingReason = blockingReason(missingDocs)
		return apperrors.BlockedByMissingDocument(missingDocs)
	}

	c.Status = CaseStatusPAReview
	c.BlockingReason = ""
	c.touch()
	c.addEvent(CaseEventTypeStatusChanged, actor, "Authorization review started", map[string]any{
		"old_status": CaseStatusEligiblePARequired,
		"new_status": CaseStatusPAReview,
	})

	return nil
}

// Submit sends the case to the payer. Eligible cases submit directly;
// cases under review submit after a human or high-confidence decision.
// Submission is blocked while any required document is missing.
func (c *Case) Submit(missingDocs []string, actor string) error {
	if c.Status != CaseStatusEligible && c.Status != CaseStatusPAReview {
		return apperrors.IllegalTransition(string(c.Status), "submit")
	}
	if len(missingDocs) > 0 {
		c.BlockingReason = blockingReason(missingDocs)
		return apperrors.BlockedByMissingDocument(missingDocs)
	}

	oldStatus := c.Status
	c.Status = CaseStatusPASubmitted
	c.BlockingReason = ""
	c.touch()
	c.addEvent(CaseEventTypeSubmitted, actor, "Submitted to payer", map[string]any{
		"old_status": oldStatus,
		"new_status": CaseStatusPASubmitted,
	})

	return nil
}

// RecordPayerResponse applies the payer's authorization decision
func (c *Case) RecordPayerResponse(approved bool, reason, actor string) error {
	if c.Status != CaseStatusPASubmitted {
		return apperrors.IllegalTransition(string(c.Status), "record_payer_response")
	}

	if approved {
		c.Status = CaseStatusPAApproved
	} else {
		c.Status = CaseStatusPADenied
		c.BlockingReason = reason
	}
	c.touch()
	c.addEvent(CaseEventTypePayerResponded, actor, "Payer response recorded", map[string]any{
		"old_status": CaseStatusPASubmitted,
		"new_status": c.Status,
		"reason":     reason,
	})

	return nil
}

// Reject closes a case under review without a payer submission. This
// is the reviewer's disposition for a case that should not go out,
// such as a low-confidence not-covered determination confirmed by a
// human. The outcome is terminal; there is no payer denial to appeal.
func (c *Case) Reject(reason, actor string) error {
	if c.Status != CaseStatusPAReview {
		return apperrors.IllegalTransition(string(c.Status), "reject")
	}
	if reason == "" {
		return fmt.Errorf("rejection reason is required")
	}

	c.Status = CaseStatusNotEligible
	c.BlockingReason = reason
	c.touch()
	c.addEvent(CaseEventTypeRejected, actor, reason, map[string]any{
		"old_status": CaseStatusPAReview,
		"new_status": CaseStatusNotEligible,
	})

	return nil
}

// Appeal re-enters review after a denial. This is an explicit action,
// not a loop-back: denied stays terminal until someone appeals.
func (c *Case) Appeal(reason, actor string) error {
	if c.Status != CaseStatusPADenied {
		return apperrors.IllegalTransition(string(c.Status), "appeal")
	}
	if reason == "" {
		return fmt.Errorf("appeal reason is required")
	}

	c.Status = CaseStatusPAReview
	c.ReviewFlag = true
	c.BlockingReason = ""
	c.touch()
	c.addEvent(CaseEventTypeAppealed, actor, reason, map[string]any{
		"old_status": CaseStatusPADenied,
		"new_status": CaseStatusPAReview,
	})

	return nil
}

// ApplyPriority records a priority assessment. The SLA deadline is set
// once and only moves on an explicit re-triage.
func (c *Case) ApplyPriority(urgencyScore int, tier PriorityTier, deadline time.Time, retriage bool, actor string) error {
	if c.SLADeadline != nil && !retriage {
		return fmt.Errorf("SLA deadline already set; re-triage required to change it")
	}

	c.UrgencyScore = urgencyScore
	c.PriorityTier = tier
	c.SLADeadline = &deadline
	c.SLABreached = false
	c.touch()

	eventType := CaseEventTypePrioritized
	description := "Priority assessed"
	if retriage {
		eventType = CaseEventTypeRetriaged
		description = "Case re-triaged"
	}
	c.addEvent(eventType, actor, description, map[string]any{
		"urgency_score": urgencyScore,
		"tier":          tier,
		"sla_deadline":  deadline,
	})

	return nil
}

// MarkSLABreached flags the case as past its SLA deadline. Advisory
// only; escalation stays a human action.
func (c *Case) MarkSLABreached() bool {
	if c.SLABreached {
		return false
	}

	c.SLABreached = true
	c.touch()
	c.addEvent(CaseEventTypeSLABreached, "", "SLA deadline passed", map[string]any{
		"sla_deadline": c.SLADeadline,
	})

	return true
}

// Assign assigns a reviewer to the case
func (c *Case) Assign(assignee, actor string) error {
	if assignee == "" {
		return fmt.Errorf("assignee is required")
	}

	c.Assignee = assignee
	c.touch()
	c.addEvent(CaseEventTypeAssigned, actor, fmt.Sprintf("Assigned to %s", assignee), nil)

	return nil
}

// MarkBlocked records a blocking condition without changing status
func (c *Case) MarkBlocked(reason string) {
	c.BlockingReason = reason
	c.touch()
	c.addEvent(CaseEventTypeBlocked, "", reason, nil)
}

// GetDomainEvents returns and clears domain events
func (c *Case) GetDomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

func (c *Case) touch() {
	now := time.Now()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// addEvent adds a timeline event and queues it for publishing
func (c *Case) addEvent(eventType CaseEventType, actor, description string, data map[string]any) {
	event := CaseEvent{
		ID:          types.NewID(),
		CaseID:      c.ID,
		Type:        eventType,
		Actor:       actor,
		Description: description,
		Data:        data,
		Timestamp:   time.Now(),
	}

	c.Events = append(c.Events, event)

	c.domainEvents = append(c.domainEvents, Event{
		Type:      string(eventType),
		CaseID:    c.ID,
		CaseEvent: event,
	})
}

func blockingReason(missingDocs []string) string {
	return fmt.Sprintf("missing required documents: %v", missingDocs)
}

// generateCaseNumber builds a human-facing case number. The random
// suffix keeps concurrent creates from colliding on a timestamp;
// uniqueness is ultimately enforced by the repository's unique
// constraint on case_number.
func generateCaseNumber() string {
	// Format: RCM-YEAR-SUFFIX (e.g., RCM-2026-1a2b3c4d)
	return fmt.Sprintf("RCM-%d-%s", time.Now().Year(), types.NewID().String()[:8])
}
