package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/swarmguard/taskengine/internal/provider"
)

func TestResourceOptimizerReallocateProportional(t *testing.T) {
	reg := provider.NewRegistry()
	opt, err := New(reg, nil, nil)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	opt.Ledger.Allocate("compA", 100)
	opt.Ledger.Use("compA", 30)
	opt.Ledger.Allocate("compB", 100)
	opt.Ledger.Use("compB", 10)

	result := opt.Reallocate()
	if len(result) != 2 {
		t.Fatalf("expected 2 components in reallocation, got %v", result)
	}
}

func TestResourceOptimizerReallocateNoUsage(t *testing.T) {
	reg := provider.NewRegistry()
	opt, _ := New(reg, nil, nil)
	opt.Ledger.Allocate("compA", 50)

	result := opt.Reallocate()
	if len(result) != 0 {
		t.Fatalf("expected empty reallocation with no usage, got %v", result)
	}
}

func TestResourceOptimizerRunAndStopPeriodic(t *testing.T) {
	reg := provider.NewRegistry()
	opt, _ := New(reg, nil, nil)

	fired := make(chan struct{}, 1)
	if err := opt.RunPeriodic("* * * * * *", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("run periodic: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cron callback to fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opt.StopPeriodic(ctx)
}

func TestResourceOptimizerScheduleBatchAndUsageReport(t *testing.T) {
	reg := provider.NewRegistry()
	opt, _ := New(reg, nil, nil)

	id, err := opt.ScheduleBatch("compA", 3, 1, nil)
	if err != nil {
		t.Fatalf("schedule batch: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty schedule id")
	}

	report := opt.UsageReport("", nil, nil)
	if report.PerComponent == nil {
		t.Fatalf("expected non-nil per-component map")
	}
}
