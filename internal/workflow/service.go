package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridian-rcm/platform/internal/adapters/remit"
	"github.com/meridian-rcm/platform/internal/agenttask"
	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/confidence"
	"github.com/meridian-rcm/platform/internal/documents"
	"github.com/meridian-rcm/platform/internal/policy"
	"github.com/meridian-rcm/platform/internal/priority"
	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/events"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Service orchestrates the case processing pipeline: it feeds task
// outcomes into the lifecycle state machine, consults the document
// checklist before gated transitions, and routes posted remittances
// into reconciliation.
type Service struct {
	repo     domain.Repository
	tracker  *documents.Tracker
	policies *policy.Store
	recon    ReconcileFunc
	bus      events.EventBus

	toleranceBps int

	// Per-case serialization: at most one applied transition at a time
	locks   map[types.ID]*sync.Mutex
	locksMu sync.Mutex

	// Completions waiting to be applied, per case. When several are
	// pending, eligibility applies before coding so a case never skips
	// its required-document checks.
	pending   map[types.ID][]completion
	pendingMu sync.Mutex
}

// ReconcileFunc posts one remittance into the reconciliation engine
type ReconcileFunc func(ctx context.Context, caseID types.ID, remittanceID, payerCode, feeScheduleRef string, expected, posted types.Money, toleranceBps int) error

type completion struct {
	kind       agenttask.Kind
	payload    any
	confidence float64
}

// applyOrder ranks task kinds for concurrent completions; lower first
var applyOrder = map[agenttask.Kind]int{
	agenttask.KindEligibility:    0,
	agenttask.KindSummarization:  1,
	agenttask.KindCoding:         2,
	agenttask.KindReconciliation: 3,
}

// New creates the workflow service
func New(repo domain.Repository, tracker *documents.Tracker, policies *policy.Store, recon ReconcileFunc, bus events.EventBus, toleranceBps int) *Service {
	return &Service{
		repo:         repo,
		tracker:      tracker,
		policies:     policies,
		recon:        recon,
		bus:          bus,
		toleranceBps: toleranceBps,
		locks:        make(map[types.ID]*sync.Mutex),
		pending:      make(map[types.ID][]completion),
	}
}

func (s *Service) caseLock(caseID types.ID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[caseID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[caseID] = lock
	}
	return lock
}

// CreateCaseInput carries the intake fields for a new case
type CreateCaseInput struct {
	PatientRef        string               `json:"patient_ref"`
	Encounter         domain.EncounterType `json:"encounter_type"`
	ProviderRef       string               `json:"provider_ref"`
	PayerCode         string               `json:"payer_code"`
	ProcedureCategory string               `json:"procedure_category"`
}

// CreateCase creates a case and seeds its document checklist from the
// payer policy in force at creation time
func (s *Service) CreateCase(ctx context.Context, input CreateCaseInput) (*domain.Case, error) {
	c, err := domain.NewCase(input.PatientRef, input.Encounter, input.ProviderRef, input.PayerCode, input.ProcedureCategory)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	snap := s.policies.Snapshot()
	if err := s.tracker.InitRequirements(ctx, c.ID, snap, c.PayerCode, c.ProcedureCategory); err != nil {
		return nil, err
	}

	metrics.RecordCaseCreated(string(c.Encounter), c.PayerCode)
	s.publishEvents(ctx, c)

	return c, nil
}

// HandleTaskCompletion is the runner's completion callback. It queues
// the completion and drains the case's queue in kind order under the
// per-case lock.
func (s *Service) HandleTaskCompletion(ctx context.Context, task *agenttask.Task, payload any, score float64) {
	s.pendingMu.Lock()
	s.pending[task.CaseID] = append(s.pending[task.CaseID], completion{
		kind:       task.Kind,
		payload:    payload,
		confidence: score,
	})
	s.pendingMu.Unlock()

	s.drainCompletions(ctx, task.CaseID)
}

func (s *Service) drainCompletions(ctx context.Context, caseID types.ID) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	for {
		s.pendingMu.Lock()
		queue := s.pending[caseID]
		if len(queue) == 0 {
			s.pendingMu.Unlock()
			return
		}
		sort.SliceStable(queue, func(i, j int) bool {
			return applyOrder[queue[i].kind] < applyOrder[queue[j].kind]
		})
		next := queue[0]
		s.pending[caseID] = queue[1:]
		s.pendingMu.Unlock()

		if err := s.applyCompletion(ctx, caseID, next); err != nil {
			fmt.Printf("Failed to apply %s completion for case %s: %v\n", next.kind, caseID, err)
		}
	}
}

// applyCompletion applies one task outcome to the case. Caller holds
// the case lock.
func (s *Service) applyCompletion(ctx context.Context, caseID types.ID, comp completion) error {
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return err
	}

	tier, err := confidence.Classify(comp.confidence)
	if err != nil {
		return err
	}

	oldStatus := c.Status

	switch comp.kind {
	case agenttask.KindEligibility:
		err = s.applyEligibility(ctx, c, comp, tier)
	case agenttask.KindSummarization:
		err = s.applySummarization(ctx, c, comp)
	case agenttask.KindCoding:
		err = s.applyCoding(ctx, c, comp, tier)
	default:
		return fmt.Errorf("no case transition for task kind %s", comp.kind)
	}
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	if c.Status != oldStatus {
		metrics.RecordCaseStatusChange(string(oldStatus), string(c.Status))
	}
	s.publishEvents(ctx, c)
	return nil
}

func (s *Service) applyEligibility(ctx context.Context, c *domain.Case, comp completion, tier confidence.Tier) error {
	result, err := decodePayload[remit.EligibilityResult](comp.payload)
	if err != nil {
		return err
	}

	// Payer policy can require authorization even when the coverage
	// response does not flag it
	snap := s.policies.Snapshot()
	paRequired := result.PARequired || snap.PARequired(c.PayerCode, c.ProcedureCategory)

	if err := c.ApplyEligibility(result.Covered, paRequired, tier, "eligibility-agent"); err != nil {
		return err
	}

	// Covered, no authorization needed: submit directly unless a
	// document requirement blocks it
	if c.Status == domain.CaseStatusEligible {
		missing, err := s.tracker.Missing(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := c.Submit(missing, "eligibility-agent"); err != nil {
			if !errors.Is(err, apperrors.ErrMissingDocument) {
				return err
			}
		}
	}

	return nil
}

func (s *Service) applySummarization(ctx context.Context, c *domain.Case, comp completion) error {
	summary, err := decodePayload[remit.ClinicalSummary](comp.payload)
	if err != nil {
		return err
	}

	signals := priority.ClinicalSignals{
		PainLevel:                   summary.PainLevel,
		ProgressionRisk:             summary.ProgressionRisk,
		ConservativeTreatmentMonths: summary.ConservativeTreatmentMonths,
	}
	assessment, err := priority.Compute(signals, s.policies.Snapshot(), c.PayerCode, c.ProcedureCategory, time.Now())
	if err != nil {
		return err
	}

	retriage := c.SLADeadline != nil
	return c.ApplyPriority(assessment.UrgencyScore, assessment.Tier, assessment.Deadline, retriage, "summarization-agent")
}

func (s *Service) applyCoding(ctx context.Context, c *domain.Case, comp completion, tier confidence.Tier) error {
	result, err := decodePayload[remit.CodingResult](comp.payload)
	if err != nil {
		return err
	}

	if err := c.SetProcedure(result.ProcedureCode, result.ProcedureName, tier); err != nil {
		return err
	}

	if c.Status != domain.CaseStatusEligiblePARequired {
		return nil
	}

	missing, err := s.tracker.Missing(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := c.BeginReview(missing, "coding-agent"); err != nil {
		if errors.Is(err, apperrors.ErrMissingDocument) {
			return nil // blocked and reported, not an apply failure
		}
		return err
	}

	// High-confidence coding may auto-advance out of review; medium
	// and low wait for a human decision
	if tier == confidence.TierHigh && !c.ReviewFlag {
		if err := c.Submit(nil, "coding-agent"); err != nil {
			return err
		}
	}

	return nil
}

// Decision is a human disposition on a case under review
type Decision string

const (
	DecisionSubmit Decision = "submit"
	DecisionReject Decision = "reject"
	DecisionAppeal Decision = "appeal"
)

// SubmitHumanDecision applies a reviewer's disposition
func (s *Service) SubmitHumanDecision(ctx context.Context, caseID types.ID, decision Decision, reason, actor string) (*domain.Case, error) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	oldStatus := c.Status

	switch decision {
	case DecisionSubmit:
		missing, merr := s.tracker.Missing(ctx, caseID)
		if merr != nil {
			return nil, merr
		}
		err = c.Submit(missing, actor)
	case DecisionReject:
		err = c.Reject(reason, actor)
	case DecisionAppeal:
		err = c.Appeal(reason, actor)
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown decision %q", decision))
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	if c.Status != oldStatus {
		metrics.RecordCaseStatusChange(string(oldStatus), string(c.Status))
	}
	s.publishEvents(ctx, c)
	return c, nil
}

// RecordPayerResponse applies the payer's authorization decision from
// the response feed
func (s *Service) RecordPayerResponse(ctx context.Context, caseID types.ID, approved bool, reason string) (*domain.Case, error) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	oldStatus := c.Status
	if err := c.RecordPayerResponse(approved, reason, "payer-feed"); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	metrics.RecordCaseStatusChange(string(oldStatus), string(c.Status))
	s.publishEvents(ctx, c)
	return c, nil
}

// RecordDocument records a retrieved or expired document and reports
// any resulting block
func (s *Service) RecordDocument(ctx context.Context, caseID types.ID, docType string, retrieved bool) error {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return err
	}

	if retrieved {
		err = s.tracker.Record(ctx, caseID, docType)
	} else {
		err = s.tracker.Expire(ctx, caseID, docType)
	}
	if err != nil {
		return err
	}

	missing, err := s.tracker.Missing(ctx, caseID)
	if err != nil {
		return err
	}

	// A reopened requirement moves a case under review back to blocked;
	// the condition is reported, never silently reverted
	if !retrieved && len(missing) > 0 && c.Status == domain.CaseStatusPAReview {
		c.MarkBlocked(fmt.Sprintf("document %s expired, required set incomplete", docType))
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		s.publishEvents(ctx, c)
		return nil
	}

	// A retrieval that completes the set releases a case whose gated
	// transition was refused while documents were outstanding
	if retrieved && len(missing) == 0 {
		return s.advanceOnCompleteDocuments(ctx, c)
	}

	return nil
}

// advanceOnCompleteDocuments re-attempts the document-gated transition
// once the required set is complete. Caller holds the case lock.
func (s *Service) advanceOnCompleteDocuments(ctx context.Context, c *domain.Case) error {
	oldStatus := c.Status

	switch c.Status {
	case domain.CaseStatusEligible:
		if err := c.Submit(nil, "document-intake"); err != nil {
			return err
		}
	case domain.CaseStatusEligiblePARequired:
		// Review needs a resolved procedure; wait for coding otherwise
		if c.ProcedureCode == "" {
			return nil
		}
		if err := c.BeginReview(nil, "document-intake"); err != nil {
			return err
		}
		if c.CodingTier == confidence.TierHigh && !c.ReviewFlag {
			if err := c.Submit(nil, "document-intake"); err != nil {
				return err
			}
		}
	default:
		return nil
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	metrics.RecordCaseStatusChange(string(oldStatus), string(c.Status))
	s.publishEvents(ctx, c)
	return nil
}

// HandleRemittance consumes a posted remittance from the
// clearinghouse feed and reconciles it against the contracted rate
func (s *Service) HandleRemittance(ctx context.Context, r remit.PostedRemittance) error {
	snap := s.policies.Snapshot()
	expected, ok := snap.AllowedAmount(r.PayerCode, r.ProcedureCode)
	if !ok {
		return apperrors.ReconciliationEntry(r.RemittanceID,
			fmt.Errorf("no fee schedule entry for payer %s procedure %s", r.PayerCode, r.ProcedureCode))
	}

	feeRef := fmt.Sprintf("%s/%s", r.PayerCode, r.ProcedureCode)
	return s.recon(ctx, r.CaseID, r.RemittanceID, r.PayerCode, feeRef, expected, r.Posted, s.toleranceBps)
}

// StatusView is the outbound case status for display
type StatusView struct {
	CaseID         types.ID            `json:"case_id"`
	CaseNumber     string              `json:"case_number"`
	Status         domain.CaseStatus   `json:"status"`
	PriorityTier   domain.PriorityTier `json:"priority_tier"`
	UrgencyScore   int                 `json:"urgency_score"`
	SLADeadline    *time.Time          `json:"sla_deadline,omitempty"`
	TimeRemaining  *time.Duration      `json:"time_remaining,omitempty"`
	SLABreached    bool                `json:"sla_breached"`
	ReviewFlag     bool                `json:"review_flag"`
	BlockingReason string              `json:"blocking_reason,omitempty"`
	MissingDocs    []string            `json:"missing_documents,omitempty"`
}

// Status assembles the live view of a case: status, priority, SLA
// countdown, and blocking reasons with exact remediation targets
func (s *Service) Status(ctx context.Context, caseID types.ID) (*StatusView, error) {
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	missing, err := s.tracker.Missing(ctx, caseID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		CaseID:         c.ID,
		CaseNumber:     c.CaseNumber,
		Status:         c.Status,
		PriorityTier:   c.PriorityTier,
		UrgencyScore:   c.UrgencyScore,
		SLADeadline:    c.SLADeadline,
		SLABreached:    c.SLABreached,
		ReviewFlag:     c.ReviewFlag,
		BlockingReason: c.BlockingReason,
		MissingDocs:    missing,
	}

	if c.SLADeadline != nil {
		remaining := time.Until(*c.SLADeadline)
		view.TimeRemaining = &remaining
	}

	return view, nil
}

// decodePayload accepts either the typed payload or its JSON shape
func decodePayload[T any](payload any) (T, error) {
	if typed, ok := payload.(T); ok {
		return typed, nil
	}

	var out T
	raw, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("invalid task payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("invalid task payload: %w", err)
	}
	return out, nil
}

func (s *Service) publishEvents(ctx context.Context, c *domain.Case) {
	if s.bus == nil {
		c.GetDomainEvents()
		return
	}

	for _, e := range c.GetDomainEvents() {
		event := events.NewEvent("case."+e.Type, "workflow", e)
		if err := s.bus.Publish(ctx, event); err != nil {
			fmt.Printf("Failed to publish case event: %v\n", err)
		}
	}
}
