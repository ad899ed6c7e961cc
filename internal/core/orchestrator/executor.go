package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/swarmguard/taskengine/internal/core/optimizer"
	"github.com/swarmguard/taskengine/internal/provider"
)

// Executor runs a single task attempt and returns its result payload.
type Executor interface {
	Execute(ctx context.Context, t *Task) (map[string]any, error)
}

// ModelTaskExecutor is the default Executor: it heuristically maps a task's
// description to a model role, selects a provider via the resource
// optimizer, and calls execute_prompt.
type ModelTaskExecutor struct {
	optimizer *optimizer.ResourceOptimizer
	registry  *provider.Registry
	roles     *provider.RoleManager
	template  *provider.PromptTemplate
}

func NewModelTaskExecutor(opt *optimizer.ResourceOptimizer, registry *provider.Registry, roles *provider.RoleManager) *ModelTaskExecutor {
	return &ModelTaskExecutor{
		optimizer: opt,
		registry:  registry,
		roles:     roles,
		template: &provider.PromptTemplate{
			ID:   "default",
			Text: "{description}",
		},
	}
}

// determineRole maps a task description to a ModelRole by keyword heuristic,
// mirroring the original task_orchestrator.py's role inference.
func determineRole(description string) provider.ModelRole {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "analyze"):
		return provider.RoleAnalyzer
	case strings.Contains(lower, "generate"):
		return provider.RoleGenerator
	case strings.Contains(lower, "validate"):
		return provider.RoleValidator
	case strings.Contains(lower, "optimize"):
		return provider.RoleOptimizer
	default:
		return provider.RoleExecutor
	}
}

func (e *ModelTaskExecutor) Execute(ctx context.Context, t *Task) (map[string]any, error) {
	role := determineRole(t.Description)

	var providerID, modelID string
	var p provider.Provider

	if assignment, err := e.roles.BestForRole(role); err == nil {
		if resolved, lookupErr := e.registry.Get(assignment.ProviderID); lookupErr == nil {
			providerID, modelID, p = assignment.ProviderID, assignment.ModelID, resolved
		}
	}

	if providerID == "" {
		id, selected, err := e.optimizer.SelectProvider(ctx, t.ID, optimizer.Requirements{
			Capabilities: t.RequiredCapabilities,
		})
		if err != nil {
			return nil, err
		}
		providerID, p = id, selected
	}

	prompt, err := e.template.Render(ctx, modelID, p, map[string]any{"description": t.Description})
	if err != nil {
		prompt = t.Description
	}
	if modelID == "" {
		models := p.ListModels()
		if len(models) == 0 {
			return nil, fmt.Errorf("provider %s exposes no models", providerID)
		}
		modelID = models[0].ID
	}

	result, err := p.Execute(ctx, modelID, prompt, t.Input)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.assignedProvider = providerID
	t.assignedModel = modelID
	t.mu.Unlock()

	return map[string]any{"text": result.Text, "metadata": result.Metadata}, nil
}
