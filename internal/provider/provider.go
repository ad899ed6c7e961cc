// Package provider defines the model-provider capability and its registry,
// the engine's only interface to external, model-agnostic AI backends.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// Capability tags a model's supported operation, e.g. "text_generation".
type Capability string

const (
	CapTextGeneration Capability = "text_generation"
	CapCodeGeneration Capability = "code_generation"
	CapSummarization  Capability = "summarization"
	CapTranslation    Capability = "translation"
	CapClassification Capability = "classification"
	CapQA             Capability = "question_answering"
	CapImage          Capability = "image_generation"
	CapAudio          Capability = "audio_generation"
	CapMultimodal     Capability = "multimodal"
)

// ModelRole is the role a model plays in the orchestration graph.
type ModelRole string

const (
	RoleOrchestrator ModelRole = "orchestrator"
	RoleExecutor     ModelRole = "executor"
	RoleAnalyzer     ModelRole = "analyzer"
	RoleGenerator    ModelRole = "generator"
	RoleValidator    ModelRole = "validator"
	RoleOptimizer    ModelRole = "optimizer"
)

// ModelInfo describes one model exposed by a Provider.
type ModelInfo struct {
	ID           string
	Capabilities []Capability
}

// Result is the outcome of an execute call.
type Result struct {
	Text     string
	Metadata map[string]any
}

// Provider is the external capability every model backend must implement.
type Provider interface {
	Info() map[string]any
	ListModels() []ModelInfo
	ModelCapabilities(modelID string) []Capability
	Execute(ctx context.Context, modelID, prompt string, params map[string]any) (Result, error)
	EstimateCost(ctx context.Context, modelID, prompt string, params map[string]any) (float64, error)
}

// Registry maps provider id to Provider. Capability lookups scan every
// provider's models; no reverse index is kept.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under id. Duplicate ids are rejected.
func (r *Registry) Register(id string, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q: %w", id, engerr.ErrAlreadyExists)
	}
	r.providers[id] = p
	return nil
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", id, engerr.ErrNotFound)
	}
	return p, nil
}

// List returns every registered provider id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// FindByCapability returns the ids of providers offering at least one model
// with the given capability.
func (r *Registry) FindByCapability(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []string
	for id, p := range r.providers {
		for _, m := range p.ListModels() {
			if hasCapability(m.Capabilities, cap) {
				matches = append(matches, id)
				break
			}
		}
	}
	return matches
}

func hasCapability(caps []Capability, want Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
