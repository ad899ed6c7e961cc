package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// PromptTemplate renders a base prompt adaptively per model, substituting
// {key} placeholders and falling back to a model-specific variant when one
// is registered.
type PromptTemplate struct {
	ID                   string
	Text                 string
	RequiredCapabilities []Capability
	Variants             map[string]string
}

// Render produces the prompt text for modelID, failing if the model lacks a
// required capability.
func (t *PromptTemplate) Render(ctx context.Context, modelID string, p Provider, params map[string]any) (string, error) {
	caps := p.ModelCapabilities(modelID)
	for _, required := range t.RequiredCapabilities {
		if !hasCapability(caps, required) {
			return "", fmt.Errorf("model %q lacks capability %q: %w", modelID, required, engerr.ErrInvalidInput)
		}
	}

	text := t.Text
	if variant, ok := t.Variants[modelID]; ok {
		text = variant
	}
	for key, value := range params {
		text = strings.ReplaceAll(text, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return text, nil
}
