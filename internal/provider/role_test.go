package provider

import (
	"errors"
	"testing"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

func TestRoleManagerManualAssign(t *testing.T) {
	reg := NewRegistry()
	rm := NewRoleManager(reg)

	rm.AssignRole(RoleGenerator, "p1", "m1")
	got, err := rm.BestForRole(RoleGenerator)
	if err != nil {
		t.Fatalf("BestForRole: %v", err)
	}
	if got.ProviderID != "p1" || got.ModelID != "m1" {
		t.Fatalf("unexpected assignment: %+v", got)
	}

	if _, err := rm.BestForRole(RoleValidator); !errors.Is(err, engerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleManagerAutoAssign(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("p1", &fakeProvider{models: []ModelInfo{
		{ID: "m1", Capabilities: []Capability{CapCodeGeneration, CapSummarization, CapTextGeneration}},
	}})
	rm := NewRoleManager(reg)
	rm.AutoAssignRoles()

	if _, err := rm.BestForRole(RoleExecutor); err != nil {
		t.Fatalf("expected executor assignment: %v", err)
	}
	if _, err := rm.BestForRole(RoleAnalyzer); err != nil {
		t.Fatalf("expected analyzer assignment: %v", err)
	}
	if _, err := rm.BestForRole(RoleGenerator); err != nil {
		t.Fatalf("expected generator assignment: %v", err)
	}
	if _, err := rm.BestForRole(RoleOrchestrator); err != nil {
		t.Fatalf("expected orchestrator assignment for 3+ capabilities: %v", err)
	}
}

func TestRoleManagerAutoAssignResets(t *testing.T) {
	reg := NewRegistry()
	rm := NewRoleManager(reg)
	rm.AssignRole(RoleGenerator, "stale", "stale")
	rm.AutoAssignRoles()
	if _, err := rm.BestForRole(RoleGenerator); err == nil {
		t.Fatalf("expected stale manual assignment to be cleared")
	}
}
