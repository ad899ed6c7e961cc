package sleep

import (
	"context"
	"fmt"
	"sync"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// TaskExecutor runs one sleep-time task and returns its result payload.
type TaskExecutor interface {
	Execute(ctx context.Context, t *Task) (map[string]any, error)
}

// BackgroundTaskRegistry maps task types to the executor that handles them,
// by concrete registration rather than dynamic module loading.
type BackgroundTaskRegistry struct {
	mu        sync.RWMutex
	executors map[string]TaskExecutor
}

func NewBackgroundTaskRegistry() *BackgroundTaskRegistry {
	return &BackgroundTaskRegistry{executors: make(map[string]TaskExecutor)}
}

// RegisterExecutor binds taskType to executor. Duplicate task types are rejected.
func (r *BackgroundTaskRegistry) RegisterExecutor(taskType string, executor TaskExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[taskType]; exists {
		return fmt.Errorf("executor %q: %w", taskType, engerr.ErrAlreadyExists)
	}
	r.executors[taskType] = executor
	return nil
}

// GetExecutor returns the executor registered for taskType.
func (r *BackgroundTaskRegistry) GetExecutor(taskType string) (TaskExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[taskType]
	return e, ok
}

// ListTaskTypes returns every registered task type.
func (r *BackgroundTaskRegistry) ListTaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}
