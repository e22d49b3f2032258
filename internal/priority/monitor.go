package priority

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/shared/events"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
)

// Monitor periodically scans for cases past their SLA deadline and
// flags them. The flag is advisory; escalation stays a human action.
type Monitor struct {
	repo     domain.Repository
	bus      events.EventBus
	interval time.Duration
	stopCh   chan struct{}
}

// NewMonitor creates an SLA breach monitor
func NewMonitor(repo domain.Repository, bus events.EventBus, interval time.Duration) *Monitor {
	return &Monitor{
		repo:     repo,
		bus:      bus,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monitoring loop
func (m *Monitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			m.checkDeadlines(ctx)
		}
	}
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	close(m.stopCh)
}

// checkDeadlines flags every unflagged case past its deadline
func (m *Monitor) checkDeadlines(ctx context.Context) {
	due, err := m.repo.FindDueBefore(ctx, time.Now())
	if err != nil {
		fmt.Printf("SLA monitor: failed to find due cases: %v\n", err)
		return
	}

	for i := range due {
		c := &due[i]
		if !c.MarkSLABreached() {
			continue
		}

		if err := m.repo.Update(ctx, c); err != nil {
			fmt.Printf("SLA monitor: failed to flag case %s: %v\n", c.ID, err)
			continue
		}

		metrics.RecordSLABreach(c.PayerCode)

		if m.bus != nil {
			for _, e := range c.GetDomainEvents() {
				event := events.NewEvent("case."+e.Type, "sla-monitor", e)
				if err := m.bus.Publish(ctx, event); err != nil {
					fmt.Printf("SLA monitor: failed to publish event: %v\n", err)
				}
			}
		}
	}
}
