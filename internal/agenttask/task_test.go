package agenttask

import (
	"errors"
	"testing"

	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

func newTestTask(t *testing.T, kind Kind) *Task {
	t.Helper()
	task, err := NewTask(types.NewID(), kind, map[string]any{"member_id": "M123"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	return task
}

// TestNewTask tests task creation and validation
func TestNewTask(t *testing.T) {
	task := newTestTask(t, KindEligibility)
	if task.State() != StateIdle {
		t.Errorf("Expected idle, got %s", task.State())
	}

	if _, err := NewTask(types.ID(""), KindEligibility, nil); err == nil {
		t.Error("Expected error for zero case ID")
	}
	if _, err := NewTask(types.NewID(), Kind("divination"), nil); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

// TestAdvanceOrdering tests strict forward stage ordering
func TestAdvanceOrdering(t *testing.T) {
	task := newTestTask(t, KindCoding)

	expected := []State{StateParsing, StateReasoning, StateDecisioning}
	for _, want := range expected {
		got, err := task.Advance()
		if err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}

	// decisioning -> completed requires Complete, not Advance
	if _, err := task.Advance(); !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

// TestComplete tests completion and confidence constraints
func TestComplete(t *testing.T) {
	task := newTestTask(t, KindEligibility)

	if err := task.Complete("payload", 90); !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Complete from idle must fail, got %v", err)
	}

	task.Advance()
	task.Advance()
	task.Advance()

	if err := task.Complete("payload", 101); !errors.Is(err, apperrors.ErrInvalidScore) {
		t.Errorf("Expected ErrInvalidScore, got %v", err)
	}
	if err := task.Complete("payload", -1); !errors.Is(err, apperrors.ErrInvalidScore) {
		t.Errorf("Expected ErrInvalidScore, got %v", err)
	}

	if err := task.Complete(map[string]bool{"covered": true}, 92); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}
	if task.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", task.State())
	}
	if task.FinishedAt == nil {
		t.Error("Expected finished timestamp")
	}

	payload, confidence, err := task.Result()
	if err != nil {
		t.Fatalf("Expected result, got %v", err)
	}
	if confidence != 92 {
		t.Errorf("Expected confidence 92, got %f", confidence)
	}
	if payload == nil {
		t.Error("Expected payload")
	}
}

// TestResultPending tests that confidence is undefined before completion
func TestResultPending(t *testing.T) {
	task := newTestTask(t, KindSummarization)

	for _, state := range []State{StateIdle, StateParsing, StateReasoning, StateDecisioning} {
		if task.State() != state {
			t.Fatalf("Expected %s, got %s", state, task.State())
		}
		if _, _, err := task.Result(); !errors.Is(err, ErrTaskPending) {
			t.Errorf("Expected ErrTaskPending in %s, got %v", state, err)
		}
		task.Advance()
	}
}

// TestFail tests the terminal failed state
func TestFail(t *testing.T) {
	task := newTestTask(t, KindEligibility)

	if err := task.Fail(FailReasonUpstream); !errors.Is(err, apperrors.ErrIllegalTransition) {
		t.Errorf("Fail from idle must be rejected, got %v", err)
	}

	task.Advance()
	if err := task.Fail(FailReasonUpstream); err != nil {
		t.Fatalf("Failed to fail task: %v", err)
	}
	if task.State() != StateFailed {
		t.Errorf("Expected failed, got %s", task.State())
	}

	_, _, err := task.Result()
	if !errors.Is(err, apperrors.ErrTaskFailed) {
		t.Errorf("Expected ErrTaskFailed, got %v", err)
	}

	// Terminal: no further transitions
	if _, err := task.Advance(); err == nil {
		t.Error("Advance after failure must be rejected")
	}
	if err := task.Fail("again"); err == nil {
		t.Error("Double failure must be rejected")
	}
}

// TestCancel tests the cooperative cancellation window
func TestCancel(t *testing.T) {
	task := newTestTask(t, KindCoding)

	if err := task.Cancel(); err == nil {
		t.Error("Cancel from idle must be rejected")
	}

	task.Advance() // parsing
	if err := task.Cancel(); err != nil {
		t.Fatalf("Cancel in parsing must succeed: %v", err)
	}
	if task.FailReason() != FailReasonCancelled {
		t.Errorf("Expected cancelled reason, got %s", task.FailReason())
	}

	// Past reasoning, cancellation is no longer allowed
	task2 := newTestTask(t, KindCoding)
	task2.Advance()
	task2.Advance()
	task2.Advance() // decisioning
	if err := task2.Cancel(); err == nil {
		t.Error("Cancel in decisioning must be rejected")
	}
}
