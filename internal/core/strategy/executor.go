package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// Executor runs a single strategy, or a short pipeline of strategies with
// each stage's output feeding the next stage's input.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// ExecuteOne runs a single registered strategy against data.
func (e *Executor) ExecuteOne(ctx context.Context, strategyID string, data any, execContext map[string]any) (Result, error) {
	s, err := e.registry.Get(strategyID)
	if err != nil {
		return Result{}, err
	}
	if !s.ValidateInput(data) {
		return Result{}, fmt.Errorf("invalid input for strategy %q: %w", strategyID, engerr.ErrInvalidInput)
	}

	start := time.Now()
	result, err := s.Process(ctx, data, execContext)
	if err != nil {
		return Result{}, fmt.Errorf("strategy %q execution failed: %w", strategyID, err)
	}

	return Result{Result: result, StrategyID: strategyID, ExecutionTime: time.Since(start)}, nil
}

// ExecuteWorkflow runs a pipeline of strategies in sequence, feeding each
// stage's output into the next stage's input. A mid-pipeline failure returns
// a partial result built from whatever stages already completed; a failure
// on the first stage propagates the error.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflow []string, data any, execContext map[string]any) (WorkflowResult, error) {
	current := data
	var completed []string

	for _, strategyID := range workflow {
		result, err := e.ExecuteOne(ctx, strategyID, current, execContext)
		if err != nil {
			if len(completed) > 0 {
				return WorkflowResult{
					Result: current, Workflow: workflow, CompletedStrategies: completed,
					Partial: true, Error: err.Error(),
				}, nil
			}
			return WorkflowResult{}, err
		}
		current = result.Result
		completed = append(completed, strategyID)
	}

	return WorkflowResult{Result: current, Workflow: workflow, CompletedStrategies: completed, Partial: false}, nil
}
