package agenttask

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Kind defines the kind of agent task
type Kind string

const (
	KindEligibility    Kind = "eligibility"
	KindSummarization  Kind = "clinical_summarization"
	KindCoding         Kind = "coding"
	KindReconciliation Kind = "reconciliation"
)

// State defines the processing state of an agent task
type State string

const (
	StateIdle        State = "idle"
	StateParsing     State = "parsing"
	StateReasoning   State = "reasoning"
	StateDecisioning State = "decisioning"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Failure reasons
const (
	FailReasonTimeout   = "timeout"
	FailReasonCancelled = "cancelled"
	FailReasonUpstream  = "upstream_error"
)

// forward is the strict stage ordering. Failed is reachable from any
// non-idle state; completed and failed are terminal.
var forward = map[State]State{
	StateIdle:        StateParsing,
	StateParsing:     StateReasoning,
	StateReasoning:   StateDecisioning,
	StateDecisioning: StateCompleted,
}

// Task is a single asynchronous unit of agent work. A retry is always
// a new Task instance; state never moves backward.
type Task struct {
	ID     types.ID `json:"id"`
	CaseID types.ID `json:"case_id"`
	Kind   Kind     `json:"kind"`
	Input  any      `json:"input,omitempty"`

	mu         sync.Mutex
	state      State
	payload    any
	confidence float64
	failReason string

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewTask creates a task in the idle state
func NewTask(caseID types.ID, kind Kind, input any) (*Task, error) {
	if caseID.IsZero() {
		return nil, fmt.Errorf("case ID is required")
	}
	switch kind {
	case KindEligibility, KindSummarization, KindCoding, KindReconciliation:
	default:
		return nil, fmt.Errorf("unknown task kind: %s", kind)
	}

	return &Task{
		ID:        types.NewID(),
		CaseID:    caseID,
		Kind:      kind,
		Input:     input,
		state:     StateIdle,
		StartedAt: time.Now(),
	}, nil
}

// State returns the current processing state
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Advance moves the task one stage forward and returns the new state
func (t *Task) Advance() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, ok := forward[t.state]
	if !ok {
		return t.state, apperrors.IllegalTransition(string(t.state), "advance")
	}
	if next == StateCompleted {
		// Completion carries a payload and confidence; use Complete
		return t.state, apperrors.IllegalTransition(string(t.state), "advance")
	}

	t.state = next
	return t.state, nil
}

// Complete finishes the task with its result. Confidence exists only
// on completed tasks and must be within [0,100].
func (t *Task) Complete(payload any, confidence float64) error {
	if confidence < 0 || confidence > 100 {
		return apperrors.InvalidScore(confidence)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateDecisioning {
		return apperrors.IllegalTransition(string(t.state), "complete")
	}

	now := time.Now()
	t.state = StateCompleted
	t.payload = payload
	t.confidence = confidence
	t.FinishedAt = &now
	return nil
}

// Fail moves the task to the terminal failed state. Idle tasks have
// not started and cannot fail.
func (t *Task) Fail(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateIdle, StateCompleted, StateFailed:
		return apperrors.IllegalTransition(string(t.state), "fail")
	}

	now := time.Now()
	t.state = StateFailed
	t.failReason = reason
	t.FinishedAt = &now
	return nil
}

// Cancel cancels the task. Only parsing and reasoning are
// cancellation points; later stages run to completion.
func (t *Task) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateParsing && t.state != StateReasoning {
		return apperrors.IllegalTransition(string(t.state), "cancel")
	}

	now := time.Now()
	t.state = StateFailed
	t.failReason = FailReasonCancelled
	t.FinishedAt = &now
	return nil
}

// Result returns the task outcome. ErrTaskPending is returned while
// the task is still in flight; failed tasks return TaskFailed with
// the recorded reason.
func (t *Task) Result() (any, float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateCompleted:
		return t.payload, t.confidence, nil
	case StateFailed:
		return nil, 0, apperrors.TaskFailed(string(t.Kind), t.failReason)
	default:
		return nil, 0, ErrTaskPending
	}
}

// FailReason returns the failure reason, empty unless failed
func (t *Task) FailReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failReason
}

// Terminal reports whether the task has finished
func (t *Task) Terminal() bool {
	s := t.State()
	return s == StateCompleted || s == StateFailed
}

// ErrTaskPending indicates the task has not reached a terminal state
var ErrTaskPending = fmt.Errorf("task result pending")
