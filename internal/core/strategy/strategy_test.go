package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/core/orchestrator"
)

type stubStrategy struct {
	valid  bool
	output any
	err    error
}

func (s *stubStrategy) Process(ctx context.Context, data any, execContext map[string]any) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}
func (s *stubStrategy) ValidateInput(data any) bool        { return s.valid }
func (s *stubStrategy) HealthCheck() map[string]any        { return map[string]any{"ok": true} }

func TestRegistryRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	meta := Metadata{StrategyID: "s1", ProblemTypes: []ProblemType{ProblemSearch}}
	if err := r.Register(meta, &stubStrategy{valid: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(meta, &stubStrategy{}); !errors.Is(err, engerr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistryListFiltersByProblemType(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "search1", ProblemTypes: []ProblemType{ProblemSearch}}, &stubStrategy{valid: true})
	_ = r.Register(Metadata{StrategyID: "gen1", ProblemTypes: []ProblemType{ProblemGeneration}}, &stubStrategy{valid: true})

	pt := ProblemSearch
	ids := r.List(&pt, nil)
	if len(ids) != 1 || ids[0] != "search1" {
		t.Fatalf("expected [search1], got %v", ids)
	}
}

func TestAnalyzerInfersProblemTypeByKeyword(t *testing.T) {
	a := Analyzer{}
	task := &orchestrator.Task{ID: "t1", Description: "search the archive for matches", Timeout: 10 * time.Second}
	profile := a.AnalyzeProblem(task)
	if profile.ProblemType != ProblemSearch {
		t.Fatalf("expected ProblemSearch, got %v", profile.ProblemType)
	}
}

func TestAnalyzerDependenciesFeatureFlag(t *testing.T) {
	a := Analyzer{}
	task := &orchestrator.Task{ID: "t1", Description: "optimize the route", Dependencies: []string{"dep1"}}
	profile := a.AnalyzeProblem(task)
	if hasDeps, _ := profile.Features["has_dependencies"].(bool); !hasDeps {
		t.Fatalf("expected has_dependencies=true")
	}
}

func TestSelectorSingleStrategyForSimpleProblem(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "s1", ProblemTypes: []ProblemType{ProblemTransformation}, RecursionType: RecursionTail}, &stubStrategy{valid: true})
	sel := NewSelector(r)

	profile := Profile{ProblemType: ProblemTransformation, InputSize: 10, EstimatedComplexity: "O(n)", Constraints: map[string]any{}}
	chosen, err := sel.Select(profile, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(chosen) != 1 || chosen[0] != "s1" {
		t.Fatalf("expected [s1], got %v", chosen)
	}
}

func TestSelectorWorkflowForComplexProblem(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "a", ProblemTypes: []ProblemType{ProblemOptimization}, RecursionType: RecursionTail}, &stubStrategy{valid: true})
	_ = r.Register(Metadata{StrategyID: "b", ProblemTypes: []ProblemType{ProblemOptimization}, RecursionType: RecursionTree}, &stubStrategy{valid: true})
	_ = r.Register(Metadata{StrategyID: "c", ProblemTypes: []ProblemType{ProblemOptimization}, RecursionType: RecursionBacktracking}, &stubStrategy{valid: true})
	sel := NewSelector(r)

	profile := Profile{ProblemType: ProblemOptimization, InputSize: 50000, EstimatedComplexity: "O(n^2)", Constraints: map[string]any{}}
	chosen, err := sel.Select(profile, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(chosen) < 2 {
		t.Fatalf("expected a multi-strategy workflow for a large/complex profile, got %v", chosen)
	}
}

func TestSelectorNoStrategiesReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	sel := NewSelector(r)
	profile := Profile{ProblemType: ProblemSearch}
	if _, err := sel.Select(profile, nil); !errors.Is(err, engerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutorExecuteOneValidatesInput(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "s1"}, &stubStrategy{valid: false})
	e := NewExecutor(r)

	_, err := e.ExecuteOne(context.Background(), "s1", "data", nil)
	if !errors.Is(err, engerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExecutorWorkflowPartialResultOnMidFailure(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "first"}, &stubStrategy{valid: true, output: "stage1"})
	_ = r.Register(Metadata{StrategyID: "second"}, &stubStrategy{valid: true, err: errors.New("stage failure")})
	_ = r.Register(Metadata{StrategyID: "third"}, &stubStrategy{valid: true, output: "stage3"})
	e := NewExecutor(r)

	result, err := e.ExecuteWorkflow(context.Background(), []string{"first", "second", "third"}, "input", nil)
	if err != nil {
		t.Fatalf("expected no top-level error on mid-pipeline failure, got %v", err)
	}
	if !result.Partial {
		t.Fatalf("expected Partial=true")
	}
	if len(result.CompletedStrategies) != 1 || result.CompletedStrategies[0] != "first" {
		t.Fatalf("expected CompletedStrategies=[first], got %v", result.CompletedStrategies)
	}
	if result.Result != "stage1" {
		t.Fatalf("expected partial result from last completed stage, got %v", result.Result)
	}
}

func TestExecutorWorkflowFirstStageFailurePropagates(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "first"}, &stubStrategy{valid: true, err: errors.New("boom")})
	e := NewExecutor(r)

	_, err := e.ExecuteWorkflow(context.Background(), []string{"first"}, "input", nil)
	if err == nil {
		t.Fatalf("expected error when first stage fails with no completed stages")
	}
}

func TestSolverEndToEnd(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Metadata{StrategyID: "transform1", ProblemTypes: []ProblemType{ProblemTransformation}}, &stubStrategy{valid: true, output: "done"})
	solver := NewSolver(r)

	task := &orchestrator.Task{ID: "t1", Description: "process the payload", Input: map[string]any{"x": 1}}
	result, err := solver.Solve(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if result == nil {
		t.Fatalf("expected non-nil result")
	}
}
