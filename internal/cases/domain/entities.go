package domain

import (
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// CaseEventType defines types of case timeline events
type CaseEventType string

const (
	CaseEventTypeCreated           CaseEventType = "created"
	CaseEventTypeStatusChanged     CaseEventType = "status_changed"
	CaseEventTypeProcedureResolved CaseEventType = "procedure_resolved"
	CaseEventTypeSubmitted         CaseEventType = "submitted"
	CaseEventTypePayerResponded    CaseEventType = "payer_responded"
	CaseEventTypeRejected          CaseEventType = "rejected"
	CaseEventTypeAppealed          CaseEventType = "appealed"
	CaseEventTypePrioritized       CaseEventType = "prioritized"
	CaseEventTypeRetriaged         CaseEventType = "retriaged"
	CaseEventTypeSLABreached       CaseEventType = "sla_breached"
	CaseEventTypeAssigned          CaseEventType = "assigned"
	CaseEventTypeBlocked           CaseEventType = "blocked"
	CaseEventTypeTaskCompleted     CaseEventType = "task_completed"
	CaseEventTypeTaskFailed        CaseEventType = "task_failed"
	CaseEventTypeDocumentRecorded  CaseEventType = "document_recorded"
)

// CaseEvent represents an event in the case timeline
type CaseEvent struct {
	ID          types.ID       `json:"id"`
	CaseID      types.ID       `json:"case_id"`
	Type        CaseEventType  `json:"type"`
	Actor       string         `json:"actor,omitempty"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Event is a domain event for publishing
type Event struct {
	Type      string    `json:"type"`
	CaseID    types.ID  `json:"case_id"`
	CaseEvent CaseEvent `json:"case_event"`
}
