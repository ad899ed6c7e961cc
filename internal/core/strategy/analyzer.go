package strategy

import (
	"fmt"
	"strings"

	"github.com/swarmguard/taskengine/internal/core/orchestrator"
)

// Profile captures a task's inferred characteristics to drive strategy selection.
type Profile struct {
	ProblemID            string
	ProblemType          ProblemType
	InputSize            int
	EstimatedComplexity  string
	Constraints          map[string]any
	Features             map[string]any
}

// Analyzer infers a Profile from a Task by keyword heuristic, mirroring the
// original's simple description-based classifier.
type Analyzer struct{}

func (Analyzer) AnalyzeProblem(t *orchestrator.Task) Profile {
	problemType := determineProblemType(t.Description)
	inputSize := estimateInputSize(t.Input)
	complexity := estimateComplexity(problemType, inputSize)

	return Profile{
		ProblemID: t.ID, ProblemType: problemType, InputSize: inputSize,
		EstimatedComplexity: complexity,
		Constraints: map[string]any{
			"time_limit":  t.Timeout.Seconds(),
			"max_retries": t.MaxRetries,
		},
		Features: map[string]any{
			"has_dependencies": len(t.Dependencies) > 0,
			"priority":         int(t.Priority),
		},
	}
}

func determineProblemType(description string) ProblemType {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, "transform", "convert", "process"):
		return ProblemTransformation
	case containsAny(lower, "search", "find", "locate"):
		return ProblemSearch
	case containsAny(lower, "optimize", "maximize", "minimize"):
		return ProblemOptimization
	case containsAny(lower, "generate", "create", "produce"):
		return ProblemGeneration
	case containsAny(lower, "analyze", "examine", "assess"):
		return ProblemAnalysis
	case containsAny(lower, "validate", "verify", "check"):
		return ProblemValidation
	default:
		return ProblemTransformation
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func estimateInputSize(input map[string]any) int {
	return len(fmt.Sprintf("%v", input))
}

func estimateComplexity(pt ProblemType, inputSize int) string {
	switch pt {
	case ProblemSearch:
		if inputSize < 1000 {
			return "O(n)"
		}
		return "O(n log n)"
	case ProblemOptimization:
		if inputSize < 500 {
			return "O(n^2)"
		}
		return "O(n^3)"
	default:
		return "O(n)"
	}
}
