package optimizer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.etcd.io/bbolt"

	"github.com/swarmguard/taskengine/internal/provider"
)

// ResourceOptimizer composes the Credit Ledger, Cost-Aware Selector, and
// Predictive Batch Scheduler behind one facade, matching the construction
// order fixed in the design notes: leaves first, no back-pointers.
type ResourceOptimizer struct {
	Ledger    *Ledger
	Selector  *CostAwareSelector
	Scheduler *PredictiveBatchScheduler

	cron *cron.Cron
}

// New constructs a ResourceOptimizer. db is optional bbolt storage for the
// schedule queue.
func New(registry *provider.Registry, budgetCap *float64, db *bbolt.DB) (*ResourceOptimizer, error) {
	ledger := NewLedger(budgetCap)
	selector := NewCostAwareSelector(ledger, registry)
	scheduler, err := NewPredictiveBatchScheduler(ledger, db)
	if err != nil {
		return nil, err
	}
	return &ResourceOptimizer{Ledger: ledger, Selector: selector, Scheduler: scheduler}, nil
}

// SelectProvider chooses a provider for component under req, per the
// Cost-Aware Selector's contract.
func (o *ResourceOptimizer) SelectProvider(ctx context.Context, component string, req Requirements) (string, provider.Provider, error) {
	return o.Selector.Select(ctx, component, req)
}

// ScheduleBatch reserves a schedule slot for n items from component.
func (o *ResourceOptimizer) ScheduleBatch(component string, n int, priority int, deadline *time.Time) (string, error) {
	return o.Scheduler.Schedule(component, n, priority, deadline)
}

// UsageReport proxies to the ledger.
func (o *ResourceOptimizer) UsageReport(component string, start, end *time.Time) UsageReport {
	return o.Ledger.UsageReport(component, start, end)
}

// Reallocate computes, for every component that has recorded usage, a target
// of the ledger's current balance times that component's share of total
// usage, and allocates the difference to components below their target,
// matching POST /resources/optimize. Allocations above their target are left
// unchanged, and each top-up raises the ledger balance. Returns the resulting
// allocation per component.
func (o *ResourceOptimizer) Reallocate() map[string]float64 {
	report := o.Ledger.UsageReport("", nil, nil)
	result := make(map[string]float64)
	if report.TotalUsed <= 0 {
		return result
	}

	balance := o.Ledger.Balance()
	for component, usage := range report.PerComponent {
		share := usage.Used / report.TotalUsed
		target := balance * share
		current := o.Ledger.Allocation(component)
		if delta := target - current; delta > 0 {
			o.Ledger.Allocate(component, delta)
		}
		result[component] = o.Ledger.Allocation(component)
	}
	return result
}

// RunPeriodic starts a cron-driven callback (e.g. to flush the ready schedule
// queue or refresh sleep-time idle-window predictions) alongside the
// optimizer. Supplements the spec's on-demand-only scheduling operations.
func (o *ResourceOptimizer) RunPeriodic(cronExpr string, fn func()) error {
	if o.cron == nil {
		o.cron = cron.New(cron.WithSeconds())
	}
	if _, err := o.cron.AddFunc(cronExpr, fn); err != nil {
		return err
	}
	o.cron.Start()
	return nil
}

// StopPeriodic stops the cron scheduler, if running.
func (o *ResourceOptimizer) StopPeriodic(ctx context.Context) {
	if o.cron == nil {
		return
	}
	stopCtx := o.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
