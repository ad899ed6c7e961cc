package optimizer

import (
	"errors"
	"testing"
	"time"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

func TestSchedulerScheduleAndNextOrdering(t *testing.T) {
	ledger := NewLedger(nil)
	sched, err := NewPredictiveBatchScheduler(ledger, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	lowID, err := sched.Schedule("compA", 5, 1, nil)
	if err != nil {
		t.Fatalf("schedule low: %v", err)
	}
	highID, err := sched.Schedule("compB", 5, 10, nil)
	if err != nil {
		t.Fatalf("schedule high: %v", err)
	}

	first := sched.Next()
	if first == nil || first.ID != highID {
		t.Fatalf("expected higher priority entry first, got %+v", first)
	}

	second := sched.Next()
	if second == nil || second.ID != lowID {
		t.Fatalf("expected low priority entry second, got %+v", second)
	}

	if sched.Next() != nil {
		t.Fatalf("expected no more scheduled entries")
	}
}

func TestSchedulerCompleteRecordsSampleAndRemoves(t *testing.T) {
	ledger := NewLedger(nil)
	sched, _ := NewPredictiveBatchScheduler(ledger, nil)
	ledger.Allocate("compA", 100)

	id, err := sched.Schedule("compA", 10, 1, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	sched.Next()

	if err := sched.Complete(id, 2*time.Second, map[string]float64{"credits": 5}, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := ledger.Allocation("compA"); got != 95 {
		t.Fatalf("expected 95 remaining after use, got %v", got)
	}

	if err := sched.Complete(id, time.Second, nil, true); !errors.Is(err, engerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for already-completed entry, got %v", err)
	}
}

func TestSchedulerPredictExecutionTimeFallback(t *testing.T) {
	ledger := NewLedger(nil)
	sched, _ := NewPredictiveBatchScheduler(ledger, nil)

	got := sched.PredictExecutionTime(10)
	want := time.Duration(float64(10) * 0.1 * float64(time.Second))
	if got != want {
		t.Fatalf("expected fallback estimate %v, got %v", want, got)
	}
}

func TestSchedulerPredictExecutionTimeFromSamples(t *testing.T) {
	ledger := NewLedger(nil)
	sched, _ := NewPredictiveBatchScheduler(ledger, nil)

	sched.RecordWorkload(WorkloadSample{BatchSize: 10, ExecutionTime: 1 * time.Second})
	sched.RecordWorkload(WorkloadSample{BatchSize: 10, ExecutionTime: 3 * time.Second})

	got := sched.PredictExecutionTime(10)
	if got != 2*time.Second {
		t.Fatalf("expected averaged 2s, got %v", got)
	}
}

func TestSchedulerInsufficientCredits(t *testing.T) {
	cap := 0.0
	ledger := NewLedger(&cap)
	sched, _ := NewPredictiveBatchScheduler(ledger, nil)
	sched.RecordWorkload(WorkloadSample{BatchSize: 5, ExecutionTime: time.Second, ResourceUsage: map[string]float64{"credits": 10}})

	_, err := sched.Schedule("compA", 5, 1, nil)
	if !errors.Is(err, engerr.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
}
