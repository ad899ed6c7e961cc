package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

func TestPromptTemplateRender(t *testing.T) {
	p := &fakeProvider{models: []ModelInfo{{ID: "m1", Capabilities: []Capability{CapTextGeneration}}}}
	tpl := &PromptTemplate{
		ID:                   "greet",
		Text:                 "Hello {name}",
		RequiredCapabilities: []Capability{CapTextGeneration},
	}

	out, err := tpl.Render(context.Background(), "m1", p, map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello world" {
		t.Fatalf("got %q", out)
	}
}

func TestPromptTemplateRenderMissingCapability(t *testing.T) {
	p := &fakeProvider{models: []ModelInfo{{ID: "m1", Capabilities: []Capability{CapImage}}}}
	tpl := &PromptTemplate{
		ID:                   "greet",
		Text:                 "Hello {name}",
		RequiredCapabilities: []Capability{CapTextGeneration},
	}

	_, err := tpl.Render(context.Background(), "m1", p, nil)
	if !errors.Is(err, engerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPromptTemplateRenderVariant(t *testing.T) {
	p := &fakeProvider{models: []ModelInfo{{ID: "m1", Capabilities: []Capability{CapTextGeneration}}}}
	tpl := &PromptTemplate{
		ID:       "greet",
		Text:     "Hello {name}",
		Variants: map[string]string{"m1": "Hi {name}!"},
	}

	out, err := tpl.Render(context.Background(), "m1", p, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hi Ada!" {
		t.Fatalf("got %q", out)
	}
}
