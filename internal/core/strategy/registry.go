package strategy

import (
	"fmt"
	"sync"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// Registry holds strategies by concrete registration: register accepts the
// live implementation directly, lookup is by id only. Replaces the
// importlib-based proxy loading the framework was originally built on.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	metadata   map[string]Metadata
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy), metadata: make(map[string]Metadata)}
}

// Register adds a strategy under metadata.StrategyID. Duplicate ids are rejected.
func (r *Registry) Register(metadata Metadata, impl Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metadata[metadata.StrategyID]; exists {
		return fmt.Errorf("strategy %q: %w", metadata.StrategyID, engerr.ErrAlreadyExists)
	}
	r.metadata[metadata.StrategyID] = metadata
	r.strategies[metadata.StrategyID] = impl
	return nil
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", id, engerr.ErrNotFound)
	}
	return s, nil
}

// Metadata returns the metadata registered under id.
func (r *Registry) Metadata(id string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metadata[id]
	if !ok {
		return Metadata{}, fmt.Errorf("strategy %q: %w", id, engerr.ErrNotFound)
	}
	return m, nil
}

// List returns strategy ids, optionally filtered by problem type and/or
// recursion type.
func (r *Registry) List(problemType *ProblemType, recursionType *RecursionType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, m := range r.metadata {
		if problemType != nil && !m.handles(*problemType) {
			continue
		}
		if recursionType != nil && m.RecursionType != *recursionType {
			continue
		}
		out = append(out, id)
	}
	return out
}
