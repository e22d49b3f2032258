package agenttask

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// stubProcessor drives the three stages with configurable behavior
type stubProcessor struct {
	parseErr   error
	reasonErr  error
	decideErr  error
	stageDelay time.Duration
	outcome    Outcome
}

func (s *stubProcessor) Parse(ctx context.Context, input any) (any, error) {
	time.Sleep(s.stageDelay)
	return input, s.parseErr
}

func (s *stubProcessor) Reason(ctx context.Context, parsed any) (any, error) {
	time.Sleep(s.stageDelay)
	return parsed, s.reasonErr
}

func (s *stubProcessor) Decide(ctx context.Context, analysis any) (Outcome, error) {
	time.Sleep(s.stageDelay)
	return s.outcome, s.decideErr
}

func waitTerminal(t *testing.T, task *Task) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !task.Terminal() {
		if time.Now().After(deadline) {
			t.Fatalf("Task did not reach a terminal state, stuck in %s", task.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestRunnerCompletion tests the happy path and the completion callback
func TestRunnerCompletion(t *testing.T) {
	var mu sync.Mutex
	var notified *Task
	var notifiedConfidence float64

	runner := NewRunner(time.Second, func(ctx context.Context, task *Task, payload any, confidence float64) {
		mu.Lock()
		defer mu.Unlock()
		notified = task
		notifiedConfidence = confidence
	})
	runner.Register(KindEligibility, &stubProcessor{outcome: Outcome{Payload: "covered", Confidence: 88}})

	task, err := runner.Start(context.Background(), types.NewID(), KindEligibility, "input")
	if err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}

	waitTerminal(t, task)
	runner.Shutdown()

	if task.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", task.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if notified == nil || notified.ID != task.ID {
		t.Fatal("Completion callback not invoked with the task")
	}
	if notifiedConfidence != 88 {
		t.Errorf("Expected confidence 88, got %f", notifiedConfidence)
	}
}

// TestRunnerDeduplication tests one active instance per (case, kind)
func TestRunnerDeduplication(t *testing.T) {
	runner := NewRunner(time.Second, nil)
	runner.Register(KindCoding, &stubProcessor{stageDelay: 50 * time.Millisecond, outcome: Outcome{Confidence: 70}})

	caseID := types.NewID()
	first, err := runner.Start(context.Background(), caseID, KindCoding, nil)
	if err != nil {
		t.Fatalf("Failed to start first task: %v", err)
	}

	if _, err := runner.Start(context.Background(), caseID, KindCoding, nil); err == nil {
		t.Error("Second concurrent task for the same (case, kind) must be rejected")
	}

	// A different kind for the same case may run concurrently
	runner.Register(KindEligibility, &stubProcessor{outcome: Outcome{Confidence: 90}})
	if _, err := runner.Start(context.Background(), caseID, KindEligibility, nil); err != nil {
		t.Errorf("Different kind must be allowed: %v", err)
	}

	waitTerminal(t, first)
	runner.Shutdown()

	// After the first finishes, a retry instance is allowed
	retry, err := runner.Start(context.Background(), caseID, KindCoding, nil)
	if err != nil {
		t.Fatalf("Retry after completion must be allowed: %v", err)
	}
	if retry.ID == first.ID {
		t.Error("Retry must be a new task instance")
	}
	waitTerminal(t, retry)
	runner.Shutdown()
}

// TestRunnerUpstreamFailure tests that upstream errors fail the task
func TestRunnerUpstreamFailure(t *testing.T) {
	runner := NewRunner(time.Second, nil)
	runner.Register(KindEligibility, &stubProcessor{reasonErr: fmt.Errorf("clearinghouse unreachable")})

	task, err := runner.Start(context.Background(), types.NewID(), KindEligibility, nil)
	if err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}

	waitTerminal(t, task)
	runner.Shutdown()

	if task.State() != StateFailed {
		t.Errorf("Expected failed, got %s", task.State())
	}
	if _, _, err := task.Result(); !errors.Is(err, apperrors.ErrTaskFailed) {
		t.Errorf("Expected ErrTaskFailed, got %v", err)
	}
	if task.FailReason() != FailReasonUpstream {
		t.Errorf("Expected upstream reason, got %s", task.FailReason())
	}
}

// TestRunnerTimeout tests the auto-fail on configured timeout
func TestRunnerTimeout(t *testing.T) {
	runner := NewRunner(30*time.Millisecond, nil)
	runner.Register(KindSummarization, &stubProcessor{stageDelay: 100 * time.Millisecond, outcome: Outcome{Confidence: 75}})

	task, err := runner.Start(context.Background(), types.NewID(), KindSummarization, nil)
	if err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}

	waitTerminal(t, task)
	runner.Shutdown()

	if task.State() != StateFailed {
		t.Errorf("Expected failed, got %s", task.State())
	}
	if task.FailReason() != FailReasonTimeout {
		t.Errorf("Expected timeout reason, got %s", task.FailReason())
	}
}

// TestRunnerCancel tests cooperative cancellation at stage boundaries
func TestRunnerCancel(t *testing.T) {
	runner := NewRunner(5*time.Second, nil)
	runner.Register(KindCoding, &stubProcessor{stageDelay: 80 * time.Millisecond, outcome: Outcome{Confidence: 75}})

	caseID := types.NewID()
	task, err := runner.Start(context.Background(), caseID, KindCoding, nil)
	if err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}

	if err := runner.Cancel(caseID, KindCoding); err != nil {
		t.Fatalf("Failed to cancel: %v", err)
	}

	waitTerminal(t, task)
	runner.Shutdown()

	if task.State() != StateFailed {
		t.Errorf("Expected failed, got %s", task.State())
	}
	if task.FailReason() != FailReasonCancelled {
		t.Errorf("Expected cancelled reason, got %s", task.FailReason())
	}

	if err := runner.Cancel(caseID, KindCoding); err == nil {
		t.Error("Cancel with no active task must be rejected")
	}
}
