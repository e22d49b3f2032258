package documents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/meridian-rcm/platform/internal/policy"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Store persists document requirements
type Store interface {
	Upsert(ctx context.Context, req *Requirement) error
	FindByCase(ctx context.Context, caseID types.ID) ([]Requirement, error)
}

// Tracker maintains the per-case document checklist that gates
// submission transitions
type Tracker struct {
	store Store
}

// NewTracker creates a document completeness tracker
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// InitRequirements seeds the required-document checklist from payer
// policy. Safe to call again after a re-triage: existing entries keep
// their retrieval status.
func (t *Tracker) InitRequirements(ctx context.Context, caseID types.ID, snap *policy.Snapshot, payerCode, procedureCategory string) error {
	existing, err := t.store.FindByCase(ctx, caseID)
	if err != nil {
		return err
	}
	seen := make(map[string]Requirement, len(existing))
	for _, req := range existing {
		seen[req.DocType] = req
	}

	for _, docType := range snap.RequiredDocuments(payerCode, procedureCategory) {
		req := Requirement{
			CaseID:   caseID,
			DocType:  docType,
			Required: true,
			Status:   StatusMissing,
		}
		if prev, ok := seen[docType]; ok {
			req.Status = prev.Status
			req.RetrievedAt = prev.RetrievedAt
		}
		if err := t.store.Upsert(ctx, &req); err != nil {
			return err
		}
	}

	return nil
}

// Record marks a document type as retrieved. Documents outside the
// required set are accepted and stored but do not affect completeness.
func (t *Tracker) Record(ctx context.Context, caseID types.ID, docType string) error {
	if docType == "" {
		return fmt.Errorf("document type is required")
	}

	existing, err := t.store.FindByCase(ctx, caseID)
	if err != nil {
		return err
	}

	now := time.Now()
	req := Requirement{
		CaseID:      caseID,
		DocType:     docType,
		Required:    false,
		Status:      StatusRetrieved,
		RetrievedAt: &now,
	}
	for _, prev := range existing {
		if prev.DocType == docType {
			req.Required = prev.Required
			break
		}
	}

	return t.store.Upsert(ctx, &req)
}

// Expire reopens a requirement when a document is superseded or
// invalidated. A case already in review becomes blocked again; the
// condition is reported, never silently reverted.
func (t *Tracker) Expire(ctx context.Context, caseID types.ID, docType string) error {
	existing, err := t.store.FindByCase(ctx, caseID)
	if err != nil {
		return err
	}

	for _, prev := range existing {
		if prev.DocType != docType {
			continue
		}
		prev.Status = StatusMissing
		prev.RetrievedAt = nil
		return t.store.Upsert(ctx, &prev)
	}

	return fmt.Errorf("no document of type %s recorded for case %s", docType, caseID)
}

// Missing returns the required document types still outstanding,
// sorted for stable remediation messages
func (t *Tracker) Missing(ctx context.Context, caseID types.ID) ([]string, error) {
	reqs, err := t.store.FindByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, req := range reqs {
		if req.Required && req.Status == StatusMissing {
			missing = append(missing, req.DocType)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// IsComplete reports whether every required document is retrieved
func (t *Tracker) IsComplete(ctx context.Context, caseID types.ID) (bool, error) {
	missing, err := t.Missing(ctx, caseID)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// Checklist returns the full requirement list for display
func (t *Tracker) Checklist(ctx context.Context, caseID types.ID) ([]Requirement, error) {
	reqs, err := t.store.FindByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].DocType < reqs[j].DocType })
	return reqs, nil
}
