package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// HistoricalEntry summarizes a strategy's track record, used to bias
// selection toward strategies that have performed well.
type HistoricalEntry struct {
	SuccessRate       float64
	AvgExecutionMs    float64
}

// Selector ranks registered strategies against a Profile and either returns
// the single best match or assembles a short complementary workflow.
type Selector struct {
	registry *Registry
}

func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select returns either a single strategy id or, for problems judged complex
// enough to need one, an ordered workflow of up to three complementary ids.
func (s *Selector) Select(profile Profile, historical map[string]HistoricalEntry) ([]string, error) {
	pt := profile.ProblemType
	candidates := s.registry.List(&pt, nil)
	if len(candidates) == 0 {
		candidates = s.registry.List(nil, nil)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no strategies available for problem type %q: %w", profile.ProblemType, engerr.ErrNotFound)
	}

	ranked := s.rank(candidates, profile, historical)

	if needsWorkflow(profile) {
		return s.createWorkflow(ranked), nil
	}
	return ranked[:1], nil
}

func (s *Selector) rank(candidates []string, profile Profile, historical map[string]HistoricalEntry) []string {
	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		meta, err := s.registry.Metadata(id)
		if err != nil {
			continue
		}
		var score float64
		if meta.handles(profile.ProblemType) {
			score += 10
		}
		score += scoreComplexityMatch(meta, profile)
		score += scoreConstraintMatch(meta, profile)
		if entry, ok := historical[id]; ok {
			score += scoreHistorical(entry, profile)
		}
		scores[id] = score
	}

	ranked := append([]string(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })
	return ranked
}

func scoreComplexityMatch(meta Metadata, profile Profile) float64 {
	strategyComplexity := meta.ComplexityProfile["time"]
	if strategyComplexity == "" {
		strategyComplexity = "O(n)"
	}
	problemComplexity := profile.EstimatedComplexity

	switch {
	case strategyComplexity == problemComplexity:
		return 5.0
	case strategyComplexity == "O(n)" && (problemComplexity == "O(n log n)" || problemComplexity == "O(n^2)"):
		return 3.0
	case (strategyComplexity == "O(n log n)" || strategyComplexity == "O(n^2)") && problemComplexity == "O(n)":
		return 1.0
	default:
		return 0.0
	}
}

func scoreConstraintMatch(meta Metadata, profile Profile) float64 {
	timeLimitSeconds, _ := profile.Constraints["time_limit"].(float64)
	if timeLimitSeconds <= 0 {
		return 0
	}
	strategyTimeMs := meta.ResourceRequirements["avg_time_ms"]
	if strategyTimeMs == 0 {
		strategyTimeMs = 1000
	}
	timeLimitMs := timeLimitSeconds * 1000

	switch {
	case strategyTimeMs <= timeLimitMs/2:
		return 3.0
	case strategyTimeMs <= timeLimitMs:
		return 1.0
	default:
		return -5.0
	}
}

func scoreHistorical(entry HistoricalEntry, profile Profile) float64 {
	score := entry.SuccessRate * 5.0
	timeLimitSeconds, _ := profile.Constraints["time_limit"].(float64)
	if timeLimitSeconds > 0 && entry.AvgExecutionMs > 0 && !math.IsInf(entry.AvgExecutionMs, 1) {
		timeLimitMs := timeLimitSeconds * 1000
		ratio := timeLimitMs / entry.AvgExecutionMs
		if ratio > 1 {
			ratio = 1
		}
		score += ratio * 3.0
	}
	return score
}

func needsWorkflow(profile Profile) bool {
	if profile.EstimatedComplexity == "O(n^2)" || profile.EstimatedComplexity == "O(n^3)" {
		return true
	}
	if profile.InputSize > 10000 {
		return true
	}
	if hasDeps, _ := profile.Features["has_dependencies"].(bool); hasDeps {
		return true
	}
	return false
}

func (s *Selector) createWorkflow(ranked []string) []string {
	if len(ranked) == 0 {
		return nil
	}
	workflow := []string{ranked[0]}
	seenRecursion := make(map[RecursionType]bool)

	if meta, err := s.registry.Metadata(ranked[0]); err == nil {
		seenRecursion[meta.RecursionType] = true
	}

	for _, id := range ranked[1:] {
		meta, err := s.registry.Metadata(id)
		if err != nil {
			continue
		}
		if seenRecursion[meta.RecursionType] {
			continue
		}
		workflow = append(workflow, id)
		seenRecursion[meta.RecursionType] = true
		if len(workflow) >= 3 {
			break
		}
	}
	return workflow
}
