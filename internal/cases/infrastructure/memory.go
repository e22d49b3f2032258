package infrastructure

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// MemoryRepository is an in-memory domain.Repository for tests and
// local development.
type MemoryRepository struct {
	mu     sync.RWMutex
	cases  map[types.ID]domain.Case
	events map[types.ID][]domain.CaseEvent
}

// NewMemoryRepository creates an empty in-memory case repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cases:  make(map[types.ID]domain.Case),
		events: make(map[types.ID][]domain.CaseEvent),
	}
}

func (r *MemoryRepository) Save(ctx context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cases[c.ID]; exists {
		return errors.Conflict("case already exists")
	}
	for _, existing := range r.cases {
		if existing.CaseNumber == c.CaseNumber {
			return errors.Conflict("case with this number already exists")
		}
	}

	r.storeLocked(c)
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	out := c
	out.Events = append([]domain.CaseEvent(nil), r.events[id]...)
	return &out, nil
}

func (r *MemoryRepository) FindByCaseNumber(ctx context.Context, caseNumber string) (*domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, c := range r.cases {
		if c.CaseNumber == caseNumber {
			out := c
			out.Events = append([]domain.CaseEvent(nil), r.events[id]...)
			return &out, nil
		}
	}
	return nil, errors.NotFound("case", caseNumber)
}

func (r *MemoryRepository) Update(ctx context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[c.ID]; !ok {
		return errors.NotFound("case", c.ID.String())
	}

	r.storeLocked(c)
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[id]; !ok {
		return errors.NotFound("case", id.String())
	}
	delete(r.cases, id)
	delete(r.events, id)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Case, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Case
	for _, c := range r.cases {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && c.PriorityTier != *filter.Priority {
			continue
		}
		if filter.PayerCode != "" && c.PayerCode != filter.PayerCode {
			continue
		}
		if filter.Assignee != "" && c.Assignee != filter.Assignee {
			continue
		}
		if filter.Breached != nil && c.SLABreached != *filter.Breached {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(c.CaseNumber), needle) &&
				!strings.Contains(strings.ToLower(c.PatientRef), needle) {
				continue
			}
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, total, nil
}

func (r *MemoryRepository) FindDueBefore(ctx context.Context, deadline time.Time) ([]domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []domain.Case
	for _, c := range r.cases {
		if c.SLADeadline == nil || c.SLABreached || c.Status.IsTerminal() {
			continue
		}
		if !c.SLADeadline.After(deadline) {
			due = append(due, c)
		}
	}
	return due, nil
}

func (r *MemoryRepository) AddEvent(ctx context.Context, caseID types.ID, e *domain.CaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[caseID]; !ok {
		return errors.NotFound("case", caseID.String())
	}
	r.appendEventLocked(caseID, *e)
	return nil
}

func (r *MemoryRepository) GetEvents(ctx context.Context, caseID types.ID, limit, offset int) ([]domain.CaseEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := append([]domain.CaseEvent(nil), r.events[caseID]...)
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	if offset > 0 {
		if offset >= len(events) {
			return nil, nil
		}
		events = events[offset:]
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// storeLocked stores a detached copy and folds new timeline events in
func (r *MemoryRepository) storeLocked(c *domain.Case) {
	for _, e := range c.Events {
		r.appendEventLocked(c.ID, e)
	}

	stored := *c
	stored.Events = nil
	r.cases[c.ID] = stored
}

func (r *MemoryRepository) appendEventLocked(caseID types.ID, e domain.CaseEvent) {
	for _, existing := range r.events[caseID] {
		if existing.ID == e.ID {
			return
		}
	}
	r.events[caseID] = append(r.events[caseID], e)
}

var _ domain.Repository = (*MemoryRepository)(nil)
