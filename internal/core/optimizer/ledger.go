// Package optimizer implements the engine's resource-optimization layer: the
// credit ledger, the cost-aware provider selector, and the predictive batch
// scheduler, composed behind a single ResourceOptimizer facade.
package optimizer

import (
	"sync"
	"time"
)

// LedgerAction is the kind of mutation recorded in the ledger's history.
type LedgerAction string

const (
	ActionAllocate LedgerAction = "ALLOCATE"
	ActionUse      LedgerAction = "USE"
)

// LedgerEntry is one append-only record of a ledger mutation.
type LedgerEntry struct {
	Timestamp time.Time
	Component string
	Action    LedgerAction
	Amount    float64
	Resulting float64
}

// Ledger tracks per-component credit allocation and usage against an optional
// global budget cap. All mutations serialize on a single lock; credit
// insufficiency is a normal boolean result, never an error.
type Ledger struct {
	mu          sync.Mutex
	balance     float64
	budgetCap   *float64
	allocations map[string]float64
	history     []LedgerEntry
}

// NewLedger constructs an empty ledger. A nil budgetCap means uncapped.
func NewLedger(budgetCap *float64) *Ledger {
	return &Ledger{
		budgetCap:   budgetCap,
		allocations: make(map[string]float64),
	}
}

// Allocate grants amount credits to component. Fails (returns false) when a
// budget cap is set and the new balance would exceed it.
func (l *Ledger) Allocate(component string, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budgetCap != nil && l.balance+amount > *l.budgetCap {
		return false
	}
	l.balance += amount
	l.allocations[component] += amount
	l.history = append(l.history, LedgerEntry{
		Timestamp: time.Now(), Component: component, Action: ActionAllocate,
		Amount: amount, Resulting: l.allocations[component],
	})
	return true
}

// Use deducts amount from component's current allocation. Fails when the
// allocation is insufficient.
func (l *Ledger) Use(component string, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allocations[component] < amount {
		return false
	}
	l.allocations[component] -= amount
	l.history = append(l.history, LedgerEntry{
		Timestamp: time.Now(), Component: component, Action: ActionUse,
		Amount: amount, Resulting: l.allocations[component],
	})
	return true
}

// Balance returns the current global balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Allocation returns component's current allocation.
func (l *Ledger) Allocation(component string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocations[component]
}

// UsageReport summarizes allocate/use totals, optionally filtered by
// component and/or a [start, end) time window.
type UsageReport struct {
	TotalAllocated   float64
	TotalUsed        float64
	PerComponent     map[string]ComponentUsage
	History          []LedgerEntry
}

// ComponentUsage holds allocate/use totals for one component.
type ComponentUsage struct {
	Allocated float64
	Used      float64
}

// UsageReport builds a report over the ledger's history, optionally scoped to
// a single component and/or a [start, end) window.
func (l *Ledger) UsageReport(component string, start, end *time.Time) UsageReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := UsageReport{PerComponent: make(map[string]ComponentUsage)}
	for _, entry := range l.history {
		if component != "" && entry.Component != component {
			continue
		}
		if start != nil && entry.Timestamp.Before(*start) {
			continue
		}
		if end != nil && !entry.Timestamp.Before(*end) {
			continue
		}
		usage := report.PerComponent[entry.Component]
		switch entry.Action {
		case ActionAllocate:
			report.TotalAllocated += entry.Amount
			usage.Allocated += entry.Amount
		case ActionUse:
			report.TotalUsed += entry.Amount
			usage.Used += entry.Amount
		}
		report.PerComponent[entry.Component] = usage
		report.History = append(report.History, entry)
	}
	return report
}

// Components returns every component id that has ever appeared in the ledger.
func (l *Ledger) Components() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.allocations))
	for id := range l.allocations {
		ids = append(ids, id)
	}
	return ids
}
