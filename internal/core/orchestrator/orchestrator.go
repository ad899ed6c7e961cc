package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

// Orchestrator owns the task table and workflow table, and drives DAG
// execution, retries, and cancellation.
type Orchestrator struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	workflows map[string][]string
	executor  Executor

	taskDuration metric.Float64Histogram
	taskRetries  metric.Int64Counter
	taskFailures metric.Int64Counter
	tracer       trace.Tracer
}

func New(executor Executor, meter metric.Meter) *Orchestrator {
	taskDuration, _ := meter.Float64Histogram("taskengine_task_duration_ms")
	taskRetries, _ := meter.Int64Counter("taskengine_task_retries_total")
	taskFailures, _ := meter.Int64Counter("taskengine_task_failures_total")
	return &Orchestrator{
		tasks:        make(map[string]*Task),
		workflows:    make(map[string][]string),
		executor:     executor,
		taskDuration: taskDuration,
		taskRetries:  taskRetries,
		taskFailures: taskFailures,
		tracer:       otel.Tracer("taskengine-orchestrator"),
	}
}

// Submit inserts task in PENDING and returns its id. A caller-supplied
// duplicate id is rejected.
func (o *Orchestrator) Submit(t Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.tasks[t.ID]; exists {
		return "", fmt.Errorf("task %q: %w", t.ID, engerr.ErrAlreadyExists)
	}
	o.tasks[t.ID] = newTask(t)
	return t.ID, nil
}

// GetStatus returns a snapshot of task id, or false if it does not exist.
func (o *Orchestrator) GetStatus(id string) (Snapshot, bool) {
	o.mu.RLock()
	task, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return task.Snapshot(), true
}

// Cancel transitions task id to CANCELLED if it is PENDING or RUNNING.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.RLock()
	task, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.status.Terminal() {
		return false
	}
	task.status = TaskCancelled
	task.completedAt = time.Now()
	return true
}

// retryDelay implements the spec's fixed backoff: delay_i = min(30, 2^i) seconds.
func retryDelay(attempt int) time.Duration {
	seconds := 1 << uint(attempt)
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

// Execute runs task id through to a terminal state. After a failure or
// timeout it increments the retry count and re-executes only while that count
// is below MaxRetries, so a task makes at most max(1, MaxRetries) attempts,
// with the spec's fixed exponential backoff between them.
// Preconditions: the task exists and every dependency is COMPLETED.
func (o *Orchestrator) Execute(ctx context.Context, id string) error {
	o.mu.RLock()
	task, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %q: %w", id, engerr.ErrNotFound)
	}

	if err := o.checkDependencies(task); err != nil {
		return err
	}

	ctx, span := o.tracer.Start(ctx, "task.execute", trace.WithAttributes(attribute.String("task_id", id)))
	defer span.End()

	task.mu.Lock()
	if task.status.Terminal() {
		task.mu.Unlock()
		return nil
	}
	task.status = TaskRunning
	task.startedAt = time.Now()
	task.mu.Unlock()

	return o.executeWithRetry(ctx, task)
}

func (o *Orchestrator) checkDependencies(task *Task) error {
	for _, depID := range task.Dependencies {
		o.mu.RLock()
		dep, exists := o.tasks[depID]
		o.mu.RUnlock()
		if !exists {
			return fmt.Errorf("dependency %q: %w", depID, engerr.ErrNotFound)
		}
		if dep.Snapshot().Status != TaskCompleted {
			return fmt.Errorf("dependency %q not completed: %w", depID, engerr.ErrDependencyUnsatisfied)
		}
	}
	return nil
}

func (o *Orchestrator) executeWithRetry(ctx context.Context, task *Task) error {
	for {
		if task.Snapshot().Status == TaskCancelled {
			return nil
		}

		attempt := task.Snapshot().RetryCount + 1
		start := time.Now()

		execCtx := ctx
		var cancel context.CancelFunc
		if task.Timeout > 0 {
			execCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		}
		output, err := o.executor.Execute(execCtx, task)
		if cancel != nil {
			cancel()
		}
		end := time.Now()

		task.mu.Lock()
		task.trace = append(task.trace, AttemptRecord{Attempt: attempt, StartedAt: start, EndedAt: end, Error: errString(err)})
		cancelled := task.status == TaskCancelled
		task.mu.Unlock()

		if cancelled {
			return nil
		}

		if err == nil {
			task.mu.Lock()
			task.status = TaskCompleted
			task.result = output
			task.completedAt = end
			task.mu.Unlock()
			o.taskDuration.Record(ctx, float64(end.Sub(start).Milliseconds()), metric.WithAttributes(attribute.String("task_id", task.ID)))
			return nil
		}

		task.mu.Lock()
		retryIndex := task.retryCount
		task.retryCount++
		retriesLeft := task.retryCount < task.MaxRetries
		task.mu.Unlock()

		o.taskFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task_id", task.ID)))

		if !retriesLeft {
			task.mu.Lock()
			task.status = TaskFailed
			task.errMsg = err.Error()
			task.completedAt = time.Now()
			task.mu.Unlock()
			return fmt.Errorf("task %s: %w", task.ID, engerr.ErrProviderError)
		}

		o.taskRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("task_id", task.ID)))
		delay := retryDelay(retryIndex)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// CreateWorkflow inserts every task in tasks and returns a fresh workflow id
// referencing their ids in order.
func (o *Orchestrator) CreateWorkflow(tasks []Task) (string, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := o.Submit(t)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	workflowID := uuid.NewString()
	o.mu.Lock()
	o.workflows[workflowID] = ids
	o.mu.Unlock()
	return workflowID, nil
}

// WorkflowResult is one task's outcome within a completed workflow.
type WorkflowResult struct {
	Result map[string]any
	Error  string
}

// ExecuteWorkflow runs the DAG to completion: the ready set (tasks with every
// dependency satisfied) executes concurrently each round; on completion of a
// round, dependents whose remaining dependency set is now empty join the
// next ready set. A failed or cancelled task poisons every transitive
// dependent: it is marked FAILED with "dependency failed: <id>" without
// being executed.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) (map[string]WorkflowResult, error) {
	o.mu.RLock()
	taskIDs, ok := o.workflows[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, engerr.ErrNotFound)
	}

	remaining := make(map[string][]string, len(taskIDs))
	dependents := make(map[string][]string)
	for _, id := range taskIDs {
		o.mu.RLock()
		task := o.tasks[id]
		o.mu.RUnlock()
		remaining[id] = append([]string(nil), task.Dependencies...)
		for _, dep := range task.Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	results := make(map[string]WorkflowResult, len(taskIDs))
	poisoned := make(map[string]bool)
	done := make(map[string]bool)

	for len(done) < len(taskIDs) {
		ready := readySet(taskIDs, remaining, done, poisoned)
		if len(ready) == 0 {
			break
		}
		sort.SliceStable(ready, func(i, j int) bool {
			o.mu.RLock()
			pi, pj := o.tasks[ready[i]].Priority, o.tasks[ready[j]].Priority
			o.mu.RUnlock()
			return pi > pj
		})

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, id := range ready {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				err := o.Execute(ctx, id)
				snap, _ := o.GetStatus(id)
				mu.Lock()
				results[id] = WorkflowResult{Result: snap.Result, Error: errString(err)}
				mu.Unlock()
			}(id)
		}
		wg.Wait()

		for _, id := range ready {
			done[id] = true
			snap, _ := o.GetStatus(id)
			if snap.Status == TaskFailed || snap.Status == TaskCancelled {
				o.poisonDependents(id, dependents, poisoned, done, results)
			}
		}
	}

	return results, nil
}

func readySet(taskIDs []string, remaining map[string][]string, done, poisoned map[string]bool) []string {
	var ready []string
	for _, id := range taskIDs {
		if done[id] || poisoned[id] {
			continue
		}
		allDone := true
		for _, dep := range remaining[id] {
			if !done[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

func (o *Orchestrator) poisonDependents(failedID string, dependents map[string][]string, poisoned, done map[string]bool, results map[string]WorkflowResult) {
	for _, depID := range dependents[failedID] {
		if done[depID] || poisoned[depID] {
			continue
		}
		msg := fmt.Sprintf("dependency failed: %s", failedID)
		poisoned[depID] = true
		done[depID] = true
		results[depID] = WorkflowResult{Error: msg}
		o.mu.RLock()
		task, ok := o.tasks[depID]
		o.mu.RUnlock()
		if ok {
			task.mu.Lock()
			if !task.status.Terminal() {
				task.status = TaskFailed
				task.errMsg = msg
				task.completedAt = time.Now()
			}
			task.mu.Unlock()
		}
		o.poisonDependents(depID, dependents, poisoned, done, results)
	}
}

// CancelWorkflow attempts to cancel every constituent task, returning the
// ids that actually transitioned.
func (o *Orchestrator) CancelWorkflow(workflowID string) ([]string, error) {
	o.mu.RLock()
	taskIDs, ok := o.workflows[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, engerr.ErrNotFound)
	}
	var cancelled []string
	for _, id := range taskIDs {
		if o.Cancel(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled, nil
}
