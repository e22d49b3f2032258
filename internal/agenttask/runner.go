package agenttask

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-rcm/platform/internal/confidence"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Outcome is the typed result of a finished processor
type Outcome struct {
	Payload    any
	Confidence float64
}

// Processor executes the three work stages of a task kind. Stage
// boundaries are the suspension points: the runner checks for
// cancellation between calls, never inside them.
type Processor interface {
	Parse(ctx context.Context, input any) (any, error)
	Reason(ctx context.Context, parsed any) (any, error)
	Decide(ctx context.Context, analysis any) (Outcome, error)
}

// CompletionFunc is invoked when a task completes successfully
type CompletionFunc func(ctx context.Context, task *Task, payload any, confidence float64)

// Runner executes agent tasks asynchronously, one active instance
// per (case, kind) pair
type Runner struct {
	mu         sync.Mutex
	processors map[Kind]Processor
	active     map[string]*activeTask
	tasks      map[types.ID]*Task
	timeout    time.Duration
	onComplete CompletionFunc
	wg         sync.WaitGroup
}

type activeTask struct {
	task   *Task
	cancel context.CancelFunc
}

// NewRunner creates a task runner. The timeout bounds each task from
// start to terminal state.
func NewRunner(timeout time.Duration, onComplete CompletionFunc) *Runner {
	return &Runner{
		processors: make(map[Kind]Processor),
		active:     make(map[string]*activeTask),
		tasks:      make(map[types.ID]*Task),
		timeout:    timeout,
		onComplete: onComplete,
	}
}

// Register binds a processor to a task kind
func (r *Runner) Register(kind Kind, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[kind] = p
}

func activeKey(caseID types.ID, kind Kind) string {
	return caseID.String() + "|" + string(kind)
}

// Start launches a task for a case. At most one task per (case, kind)
// may be active; a retry after failure is a fresh Start call.
func (r *Runner) Start(ctx context.Context, caseID types.ID, kind Kind, input any) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("no processor registered for kind %s", kind)
	}

	key := activeKey(caseID, kind)
	if existing, ok := r.active[key]; ok {
		return nil, fmt.Errorf("task %s already active for case %s", kind, existing.task.CaseID)
	}

	task, err := NewTask(caseID, kind, input)
	if err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.active[key] = &activeTask{task: task, cancel: cancel}
	r.tasks[task.ID] = task

	r.wg.Add(1)
	go r.run(taskCtx, cancel, task, p)

	return task, nil
}

// Get returns a task by ID, nil when unknown
func (r *Runner) Get(taskID types.ID) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[taskID]
}

// Active returns the in-flight task for a (case, kind) pair, nil when none
func (r *Runner) Active(caseID types.ID, kind Kind) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.active[activeKey(caseID, kind)]; ok {
		return at.task
	}
	return nil
}

// Cancel requests cooperative cancellation of an in-flight task. The
// task stops at its next stage boundary; decisioning runs to completion.
func (r *Runner) Cancel(caseID types.ID, kind Kind) error {
	r.mu.Lock()
	at, ok := r.active[activeKey(caseID, kind)]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active %s task for case %s", kind, caseID)
	}

	at.cancel()
	return nil
}

// Shutdown waits for in-flight tasks to reach a terminal state
func (r *Runner) Shutdown() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, task *Task, p Processor) {
	defer r.wg.Done()
	defer cancel()
	defer r.release(task)

	// idle -> parsing
	if _, err := task.Advance(); err != nil {
		return
	}
	parsed, err := p.Parse(ctx, task.Input)
	if err != nil {
		r.fail(task, err)
		return
	}
	if r.interrupted(ctx, task) {
		return
	}

	// parsing -> reasoning
	if _, err := task.Advance(); err != nil {
		return
	}
	analysis, err := p.Reason(ctx, parsed)
	if err != nil {
		r.fail(task, err)
		return
	}
	if r.interrupted(ctx, task) {
		return
	}

	// reasoning -> decisioning; past this point the task runs to the end
	if _, err := task.Advance(); err != nil {
		return
	}
	outcome, err := p.Decide(ctx, analysis)
	if err != nil {
		r.fail(task, err)
		return
	}

	if err := task.Complete(outcome.Payload, outcome.Confidence); err != nil {
		r.fail(task, err)
		return
	}

	tier, _ := confidence.Classify(outcome.Confidence)
	metrics.RecordTaskCompleted(string(task.Kind), string(tier), time.Since(task.StartedAt))

	if r.onComplete != nil {
		r.onComplete(ctx, task, outcome.Payload, outcome.Confidence)
	}
}

// interrupted handles cancellation and timeout at a stage boundary.
// Returns true when the task was moved to a terminal state.
func (r *Runner) interrupted(ctx context.Context, task *Task) bool {
	select {
	case <-ctx.Done():
	default:
		return false
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		task.Fail(FailReasonTimeout)
		metrics.RecordTaskFailed(string(task.Kind), FailReasonTimeout, time.Since(task.StartedAt))
	} else {
		task.Cancel()
		metrics.RecordTaskFailed(string(task.Kind), FailReasonCancelled, time.Since(task.StartedAt))
	}
	return true
}

func (r *Runner) fail(task *Task, cause error) {
	reason := FailReasonUpstream
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = FailReasonTimeout
	} else if errors.Is(cause, context.Canceled) {
		reason = FailReasonCancelled
	}

	if reason == FailReasonCancelled {
		if err := task.Cancel(); err != nil {
			task.Fail(reason)
		}
	} else {
		task.Fail(reason)
	}
	metrics.RecordTaskFailed(string(task.Kind), reason, time.Since(task.StartedAt))
}

func (r *Runner) release(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, activeKey(task.CaseID, task.Kind))
}
