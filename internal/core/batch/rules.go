package batch

import "github.com/swarmguard/taskengine/internal/core/orchestrator"

// LoadAwareRule shrinks the recommended batch size as system_state["load"]
// (a 0..1 figure) rises, bottoming out at 1.
type LoadAwareRule struct {
	MaxBatchSize int
}

func (r LoadAwareRule) Evaluate(tasks []*orchestrator.Task, systemState map[string]any) int {
	max := r.MaxBatchSize
	if max <= 0 {
		max = 10
	}
	load, _ := systemState["load"].(float64)
	if load <= 0 {
		return clamp(max, len(tasks))
	}
	if load >= 1 {
		return 1
	}
	n := int(float64(max) * (1 - load))
	if n < 1 {
		n = 1
	}
	return clamp(n, len(tasks))
}

// PriorityWeightedRule counts only tasks at or above a priority floor,
// favoring urgent work over queue depth.
type PriorityWeightedRule struct {
	MinPriority orchestrator.Priority
}

func (r PriorityWeightedRule) Evaluate(tasks []*orchestrator.Task, systemState map[string]any) int {
	count := 0
	for _, t := range tasks {
		if t.Priority >= r.MinPriority {
			count++
		}
	}
	if count == 0 {
		return clamp(1, len(tasks))
	}
	return clamp(count, len(tasks))
}

// SimilarityRule groups tasks that share the same description, stopping at
// the first dissimilar task (tasks are assumed pre-sorted by arrival order).
type SimilarityRule struct{}

func (r SimilarityRule) Evaluate(tasks []*orchestrator.Task, systemState map[string]any) int {
	if len(tasks) == 0 {
		return 0
	}
	n := 1
	first := tasks[0].Description
	for _, t := range tasks[1:] {
		if t.Description != first {
			break
		}
		n++
	}
	return n
}

func clamp(n, max int) int {
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}
