package provider

import (
	"fmt"
	"sync"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// Assignment names the provider+model backing a role.
type Assignment struct {
	ProviderID string
	ModelID    string
}

// RoleManager tracks which models have been assigned to which roles, either
// manually or via capability-based auto-assignment.
type RoleManager struct {
	mu          sync.RWMutex
	registry    *Registry
	assignments map[ModelRole][]Assignment
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{registry: registry, assignments: make(map[ModelRole][]Assignment)}
}

// AssignRole manually assigns a role to a specific provider/model pair.
func (rm *RoleManager) AssignRole(role ModelRole, providerID, modelID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.assignments[role] = append(rm.assignments[role], Assignment{ProviderID: providerID, ModelID: modelID})
}

// ModelsForRole returns every assignment recorded for role.
func (rm *RoleManager) ModelsForRole(role ModelRole) []Assignment {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]Assignment, len(rm.assignments[role]))
	copy(out, rm.assignments[role])
	return out
}

// AutoAssignRoles resets and rebuilds role assignments from every registered
// provider's declared model capabilities.
func (rm *RoleManager) AutoAssignRoles() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.assignments = make(map[ModelRole][]Assignment)

	for _, providerID := range rm.registry.List() {
		p, err := rm.registry.Get(providerID)
		if err != nil {
			continue
		}
		for _, model := range p.ListModels() {
			caps := model.Capabilities
			if hasCapability(caps, CapCodeGeneration) {
				rm.assignments[RoleExecutor] = append(rm.assignments[RoleExecutor], Assignment{providerID, model.ID})
			}
			if hasCapability(caps, CapSummarization) {
				rm.assignments[RoleAnalyzer] = append(rm.assignments[RoleAnalyzer], Assignment{providerID, model.ID})
			}
			if hasCapability(caps, CapTextGeneration) {
				rm.assignments[RoleGenerator] = append(rm.assignments[RoleGenerator], Assignment{providerID, model.ID})
			}
			if len(caps) >= 3 {
				rm.assignments[RoleOrchestrator] = append(rm.assignments[RoleOrchestrator], Assignment{providerID, model.ID})
			}
		}
	}
}

// BestForRole returns the first model assigned to role.
func (rm *RoleManager) BestForRole(role ModelRole) (Assignment, error) {
	candidates := rm.ModelsForRole(role)
	if len(candidates) == 0 {
		return Assignment{}, fmt.Errorf("role %q: %w", role, engerr.ErrNotFound)
	}
	return candidates[0], nil
}
