package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

type scriptedExecutor struct {
	calls map[string]*int32
	fail  map[string]int32
	err   error
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{calls: make(map[string]*int32), fail: make(map[string]int32)}
}

func (e *scriptedExecutor) failNTimes(taskID string, n int32) {
	e.fail[taskID] = n
}

func (e *scriptedExecutor) Execute(ctx context.Context, t *Task) (map[string]any, error) {
	counter, ok := e.calls[t.ID]
	if !ok {
		var c int32
		counter = &c
		e.calls[t.ID] = counter
	}
	attempt := atomic.AddInt32(counter, 1)
	if attempt <= e.fail[t.ID] {
		return nil, errors.New("provider transient error")
	}
	return map[string]any{"ok": true}, nil
}

func meter() noop.Meter { return noop.Meter{} }

func TestOrchestratorLinearWorkflow(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	idA, err := o.Submit(Task{Description: "a"})
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	idB, err := o.Submit(Task{Description: "b", Dependencies: []string{idA}})
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	idC, err := o.Submit(Task{Description: "c", Dependencies: []string{idB}})
	if err != nil {
		t.Fatalf("submit c: %v", err)
	}

	ctx := context.Background()
	if err := o.Execute(ctx, idA); err != nil {
		t.Fatalf("execute a: %v", err)
	}
	if err := o.Execute(ctx, idB); err != nil {
		t.Fatalf("execute b: %v", err)
	}
	if err := o.Execute(ctx, idC); err != nil {
		t.Fatalf("execute c: %v", err)
	}

	for _, id := range []string{idA, idB, idC} {
		snap, _ := o.GetStatus(id)
		if snap.Status != TaskCompleted {
			t.Fatalf("task %s: expected COMPLETED, got %s", id, snap.Status)
		}
	}
}

func TestOrchestratorExecuteRejectsUnsatisfiedDependency(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	idA, _ := o.Submit(Task{Description: "a"})
	idB, _ := o.Submit(Task{Description: "b", Dependencies: []string{idA}})

	if err := o.Execute(context.Background(), idB); !errors.Is(err, engerr.ErrDependencyUnsatisfied) {
		t.Fatalf("expected ErrDependencyUnsatisfied, got %v", err)
	}
}

func TestWorkflowFanOutFailure(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	taskA := Task{ID: "A", Description: "a", MaxRetries: 0}
	taskB := Task{ID: "B", Description: "b", Dependencies: []string{"A"}}
	taskC := Task{ID: "C", Description: "c", Dependencies: []string{"A"}}
	exec.failNTimes("A", 1) // first attempt fails, MaxRetries=0 so it's terminal

	wfID, err := o.CreateWorkflow([]Task{taskA, taskB, taskC})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	results, err := o.ExecuteWorkflow(context.Background(), wfID)
	if err != nil {
		t.Fatalf("execute workflow: %v", err)
	}

	snapA, _ := o.GetStatus("A")
	if snapA.Status != TaskFailed {
		t.Fatalf("expected A FAILED, got %s", snapA.Status)
	}

	for _, id := range []string{"B", "C"} {
		snap, _ := o.GetStatus(id)
		if snap.Status != TaskFailed {
			t.Fatalf("task %s: expected FAILED, got %s", id, snap.Status)
		}
		want := "dependency failed: A"
		if results[id].Error != want {
			t.Fatalf("task %s: expected error %q, got %q", id, want, results[id].Error)
		}
	}
	if len(results) != 3 {
		t.Fatalf("expected exactly 3 results, got %d", len(results))
	}
}

func TestOrchestratorRetryThenSuccess(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	id, _ := o.Submit(Task{Description: "flaky", MaxRetries: 3})
	exec.failNTimes(id, 2)

	start := time.Now()
	if err := o.Execute(context.Background(), id); err != nil {
		t.Fatalf("execute: %v", err)
	}
	elapsed := time.Since(start)

	snap, _ := o.GetStatus(id)
	if snap.Status != TaskCompleted {
		t.Fatalf("expected COMPLETED, got %s", snap.Status)
	}
	if snap.RetryCount != 2 {
		t.Fatalf("expected retry_count 2, got %d", snap.RetryCount)
	}
	if len(snap.Trace) != 3 {
		t.Fatalf("expected 3 attempts in trace, got %d", len(snap.Trace))
	}
	// delay_1=1s, delay_2=2s -> 3s total, with headroom before the next
	// doubling (4s) would show up if the wrong retry index were used.
	if elapsed < 3*time.Second || elapsed >= 4*time.Second {
		t.Fatalf("expected total delay in [3s, 4s), got %v", elapsed)
	}
}

func TestOrchestratorCancelPreventsFurtherTransition(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	id, _ := o.Submit(Task{Description: "a"})
	if !o.Cancel(id) {
		t.Fatalf("expected cancel of PENDING task to succeed")
	}
	snap, _ := o.GetStatus(id)
	if snap.Status != TaskCancelled {
		t.Fatalf("expected CANCELLED, got %s", snap.Status)
	}
	if o.Cancel(id) {
		t.Fatalf("expected cancel of terminal task to fail")
	}

	// Execute should observe cancellation and return without transitioning.
	_ = o.Execute(context.Background(), id)
	snap, _ = o.GetStatus(id)
	if snap.Status != TaskCancelled {
		t.Fatalf("expected status to remain CANCELLED, got %s", snap.Status)
	}
}

func TestSubmitDuplicateIDRejected(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	if _, err := o.Submit(Task{ID: "dup"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := o.Submit(Task{ID: "dup"}); !errors.Is(err, engerr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCancelWorkflow(t *testing.T) {
	exec := newScriptedExecutor()
	o := New(exec, meter())

	wfID, _ := o.CreateWorkflow([]Task{{ID: "X"}, {ID: "Y"}})
	cancelled, err := o.CancelWorkflow(wfID)
	if err != nil {
		t.Fatalf("cancel workflow: %v", err)
	}
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 tasks cancelled, got %d", len(cancelled))
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := retryDelay(c.attempt); got != c.want {
			t.Fatalf("retryDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
