package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

type fakeProvider struct {
	models []ModelInfo
	cost   float64
	err    error
}

func (f *fakeProvider) Info() map[string]any { return map[string]any{"name": "fake"} }
func (f *fakeProvider) ListModels() []ModelInfo { return f.models }
func (f *fakeProvider) ModelCapabilities(modelID string) []Capability {
	for _, m := range f.models {
		if m.ID == modelID {
			return m.Capabilities
		}
	}
	return nil
}
func (f *fakeProvider) Execute(ctx context.Context, modelID, prompt string, params map[string]any) (Result, error) {
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Text: "ok: " + prompt}, nil
}
func (f *fakeProvider) EstimateCost(ctx context.Context, modelID, prompt string, params map[string]any) (float64, error) {
	return f.cost, f.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{models: []ModelInfo{{ID: "m1", Capabilities: []Capability{CapTextGeneration}}}}

	if err := r.Register("p1", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("p1", p); !errors.Is(err, engerr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := r.Get("p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != Provider(p) {
		t.Fatalf("got unexpected provider")
	}

	if _, err := r.Get("missing"); !errors.Is(err, engerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryFindByCapability(t *testing.T) {
	r := NewRegistry()
	p1 := &fakeProvider{models: []ModelInfo{{ID: "m1", Capabilities: []Capability{CapTextGeneration}}}}
	p2 := &fakeProvider{models: []ModelInfo{{ID: "m2", Capabilities: []Capability{CapImage}}}}
	_ = r.Register("p1", p1)
	_ = r.Register("p2", p2)

	matches := r.FindByCapability(CapTextGeneration)
	if len(matches) != 1 || matches[0] != "p1" {
		t.Fatalf("expected [p1], got %v", matches)
	}

	if matches := r.FindByCapability(CapAudio); len(matches) != 0 {
		t.Fatalf("expected no matches, got %v", matches)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("p1", &fakeProvider{})
	_ = r.Register("p2", &fakeProvider{})
	ids := r.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}
