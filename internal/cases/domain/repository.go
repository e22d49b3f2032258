package domain

import (
	"context"
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Repository defines the interface for case persistence
type Repository interface {
	// Case operations
	Save(ctx context.Context, c *Case) error
	FindByID(ctx context.Context, id types.ID) (*Case, error)
	FindByCaseNumber(ctx context.Context, caseNumber string) (*Case, error)
	Update(ctx context.Context, c *Case) error
	Delete(ctx context.Context, id types.ID) error

	// Query operations
	List(ctx context.Context, filter ListFilter) ([]Case, int, error)
	FindDueBefore(ctx context.Context, deadline time.Time) ([]Case, error)

	// Event operations
	AddEvent(ctx context.Context, caseID types.ID, e *CaseEvent) error
	GetEvents(ctx context.Context, caseID types.ID, limit, offset int) ([]CaseEvent, error)
}

// ListFilter defines filters for listing cases
type ListFilter struct {
	Status    *CaseStatus   `json:"status,omitempty"`
	Priority  *PriorityTier `json:"priority,omitempty"`
	PayerCode string        `json:"payer_code,omitempty"`
	Assignee  string        `json:"assignee,omitempty"`
	Breached  *bool         `json:"breached,omitempty"`
	Search    string        `json:"search,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
	OrderBy   string        `json:"order_by,omitempty"`
	OrderDesc bool          `json:"order_desc,omitempty"`
}
