package strategy

import (
	"context"

	"github.com/swarmguard/taskengine/internal/core/orchestrator"
)

// Solver is the facade combining analysis, selection, and execution into one
// solve(task) operation.
type Solver struct {
	Registry *Registry
	Analyzer Analyzer
	Selector *Selector
	Executor *Executor
}

func NewSolver(registry *Registry) *Solver {
	return &Solver{
		Registry: registry,
		Analyzer: Analyzer{},
		Selector: NewSelector(registry),
		Executor: NewExecutor(registry),
	}
}

// Solve analyzes task, selects a strategy or workflow, and executes it.
func (s *Solver) Solve(ctx context.Context, task *orchestrator.Task, historical map[string]HistoricalEntry) (any, error) {
	profile := s.Analyzer.AnalyzeProblem(task)

	chosen, err := s.Selector.Select(profile, historical)
	if err != nil {
		return nil, err
	}

	execContext := map[string]any{"task_id": task.ID, "problem_profile": profile}

	if len(chosen) == 1 {
		result, err := s.Executor.ExecuteOne(ctx, chosen[0], task.Input, execContext)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	result, err := s.Executor.ExecuteWorkflow(ctx, chosen, task.Input, execContext)
	if err != nil {
		return nil, err
	}
	return result, nil
}
