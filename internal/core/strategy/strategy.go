// Package strategy implements the Tiered Strategy Framework: problem
// analysis, ranked strategy selection (single strategy or a short workflow),
// and execution, backed by a typed registry in place of dynamic module
// loading.
package strategy

import (
	"context"
	"time"
)

// RecursionType classifies a strategy's control-flow shape.
type RecursionType string

const (
	RecursionTail             RecursionType = "tail"
	RecursionNonTail          RecursionType = "non_tail"
	RecursionTree             RecursionType = "tree"
	RecursionMutual           RecursionType = "mutual"
	RecursionDivideAndConquer RecursionType = "divide_and_conquer"
	RecursionBacktracking     RecursionType = "backtracking"
)

// ProblemType classifies the kind of problem a strategy solves.
type ProblemType string

const (
	ProblemTransformation ProblemType = "transformation"
	ProblemSearch         ProblemType = "search"
	ProblemOptimization   ProblemType = "optimization"
	ProblemGeneration     ProblemType = "generation"
	ProblemAnalysis       ProblemType = "analysis"
	ProblemValidation     ProblemType = "validation"
)

// Metadata describes a registered strategy's applicability and cost profile.
type Metadata struct {
	StrategyID           string
	Description          string
	RecursionType        RecursionType
	ProblemTypes         []ProblemType
	ComplexityProfile    map[string]string // e.g. "time" -> "O(n)"
	ResourceRequirements map[string]float64 // e.g. "avg_time_ms" -> 50
}

func (m Metadata) handles(pt ProblemType) bool {
	for _, p := range m.ProblemTypes {
		if p == pt {
			return true
		}
	}
	return false
}

// Strategy processes problem input under a context and reports its own health.
type Strategy interface {
	Process(ctx context.Context, data any, execContext map[string]any) (any, error)
	ValidateInput(data any) bool
	HealthCheck() map[string]any
}

// HealthStatus summarizes Registry-held metadata plus live health for one id.
type HealthStatus struct {
	StrategyID string
	Health     map[string]any
}

// Result is a completed single-strategy execution.
type Result struct {
	Result       any
	StrategyID   string
	ExecutionTime time.Duration
}

// WorkflowResult is a completed multi-strategy pipeline execution.
type WorkflowResult struct {
	Result               any
	Workflow             []string
	CompletedStrategies  []string
	Partial              bool
	Error                string
}
