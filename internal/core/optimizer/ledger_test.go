package optimizer

import "testing"

func TestLedgerAllocateAndUse(t *testing.T) {
	l := NewLedger(nil)

	if !l.Allocate("compA", 100) {
		t.Fatalf("expected allocate to succeed with no cap")
	}
	if got := l.Allocation("compA"); got != 100 {
		t.Fatalf("expected allocation 100, got %v", got)
	}
	if got := l.Balance(); got != 100 {
		t.Fatalf("expected balance 100, got %v", got)
	}

	if !l.Use("compA", 40) {
		t.Fatalf("expected use to succeed")
	}
	if got := l.Allocation("compA"); got != 60 {
		t.Fatalf("expected allocation 60 after use, got %v", got)
	}

	if l.Use("compA", 1000) {
		t.Fatalf("expected use beyond allocation to fail")
	}
}

func TestLedgerBudgetCap(t *testing.T) {
	cap := 50.0
	l := NewLedger(&cap)

	if !l.Allocate("compA", 30) {
		t.Fatalf("expected allocate under cap to succeed")
	}
	if l.Allocate("compB", 30) {
		t.Fatalf("expected allocate over cap to fail")
	}
	if got := l.Balance(); got != 30 {
		t.Fatalf("expected balance unchanged at 30, got %v", got)
	}
}

func TestLedgerUsageReport(t *testing.T) {
	l := NewLedger(nil)
	l.Allocate("compA", 100)
	l.Use("compA", 20)
	l.Allocate("compB", 50)

	all := l.UsageReport("", nil, nil)
	if all.TotalAllocated != 150 {
		t.Fatalf("expected total allocated 150, got %v", all.TotalAllocated)
	}
	if all.TotalUsed != 20 {
		t.Fatalf("expected total used 20, got %v", all.TotalUsed)
	}

	scoped := l.UsageReport("compA", nil, nil)
	if scoped.TotalAllocated != 100 || scoped.TotalUsed != 20 {
		t.Fatalf("expected scoped report {100,20}, got %+v", scoped)
	}
	if _, ok := scoped.PerComponent["compB"]; ok {
		t.Fatalf("expected compB excluded from scoped report")
	}
}

func TestLedgerComponents(t *testing.T) {
	l := NewLedger(nil)
	l.Allocate("compA", 10)
	l.Allocate("compB", 10)
	ids := l.Components()
	if len(ids) != 2 {
		t.Fatalf("expected 2 components, got %v", ids)
	}
}
