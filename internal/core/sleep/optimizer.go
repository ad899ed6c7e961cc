package sleep

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"
	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/platform/resilience"
)

// ExecutionRecord is one worker-loop dispatch outcome, newest first when listed.
type ExecutionRecord struct {
	Timestamp time.Time
	TaskID    string
	TaskType  string
	Status    string
	Error     string
	Duration  time.Duration
}

// SystemStatus is the optimizer's full point-in-time view.
type SystemStatus struct {
	Idle      IdleState
	Queue     QueueStatus
	Usage     map[string]float64
	Limits    map[string]float64
	Available map[string]float64
	Running   bool
}

// Optimizer coordinates resource monitoring, idle detection, and a
// background worker loop that drains the task queue only while idle,
// gated by a rate limiter so bursts of newly-ready tasks don't saturate
// the executor pool the moment the system goes idle.
type Optimizer struct {
	Monitor   *ResourceMonitor
	Scheduler *TaskScheduler
	Detector  *SleepDetector
	Registry  *BackgroundTaskRegistry

	limiter *resilience.RateLimiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	historyMu sync.Mutex
	history   []ExecutionRecord

	dispatched    metric.Int64Counter
	dispatchFails metric.Int64Counter
	tracer        trace.Tracer
}

func New(monitor *ResourceMonitor, scheduler *TaskScheduler, detector *SleepDetector, registry *BackgroundTaskRegistry, meter metric.Meter) *Optimizer {
	dispatched, _ := meter.Int64Counter("taskengine_sleep_tasks_dispatched_total")
	dispatchFails, _ := meter.Int64Counter("taskengine_sleep_tasks_failed_total")
	return &Optimizer{
		Monitor: monitor, Scheduler: scheduler, Detector: detector, Registry: registry,
		limiter:       resilience.NewRateLimiter(5, 1, time.Minute, 60),
		dispatched:    dispatched,
		dispatchFails: dispatchFails,
		tracer:        otel.Tracer("taskengine-sleep"),
	}
}

// Start launches the background worker loop, polling idle state once a
// second. A no-op if already running.
func (o *Optimizer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	go o.workerLoop(ctx)
}

// Stop signals the worker loop to exit and waits for it, up to 5 seconds.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func (o *Optimizer) workerLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.Detector.CheckIdleState().IsIdle {
				o.executePending(ctx)
			}
		}
	}
}

func (o *Optimizer) executePending(ctx context.Context) {
	task := o.Scheduler.Next()
	if task == nil {
		return
	}
	if !o.limiter.Allow() {
		// Capacity-gated: put the task back for the next tick.
		o.Scheduler.mu.Lock()
		task.Status = StatusPending
		o.Scheduler.pushLocked(task.ID, task.Priority)
		delete(o.Scheduler.scheduled, task.ID)
		o.Scheduler.mu.Unlock()
		return
	}

	executor, ok := o.Registry.GetExecutor(task.TaskType)
	if !ok {
		o.Scheduler.Fail(task.ID, fmt.Sprintf("no executor registered for task type %q", task.TaskType))
		return
	}

	task.Status = StatusRunning
	task.StartedAt = time.Now()

	spanCtx, span := o.tracer.Start(ctx, "sleep.execute", trace.WithAttributes(attribute.String("task_id", task.ID)))
	result, err := executor.Execute(spanCtx, task)
	span.End()

	duration := time.Since(task.StartedAt)
	record := ExecutionRecord{Timestamp: time.Now(), TaskID: task.ID, TaskType: task.TaskType, Duration: duration}

	if err != nil {
		o.Scheduler.Fail(task.ID, err.Error())
		record.Status, record.Error = "failed", err.Error()
		o.dispatchFails.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", task.TaskType)))
	} else {
		o.Scheduler.Complete(task.ID, result)
		record.Status = "completed"
		o.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", task.TaskType)))
	}

	o.historyMu.Lock()
	o.history = append(o.history, record)
	if len(o.history) > 1000 {
		o.history = o.history[len(o.history)-1000:]
	}
	o.historyMu.Unlock()
}

// AddTask creates and enqueues a new sleep-time task of a registered type.
func (o *Optimizer) AddTask(name, taskType string, params map[string]any, priority Priority, estimatedDuration time.Duration, estimatedResources map[string]float64, dependencies []string) (string, error) {
	found := false
	for _, t := range o.Registry.ListTaskTypes() {
		if t == taskType {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("task type %q: %w", taskType, engerr.ErrInvalidInput)
	}

	task := &Task{
		ID: uuid.NewString(), Name: name,
		Description: fmt.Sprintf("sleep-time task of type %q", taskType),
		Priority:    priority, TaskType: taskType, Parameters: params,
		EstimatedDuration: estimatedDuration, EstimatedResources: estimatedResources,
		Dependencies: dependencies,
	}
	if err := o.Scheduler.Add(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// TaskStatus returns the current state of task id.
func (o *Optimizer) TaskStatus(id string) (*Task, bool) {
	return o.Scheduler.Get(id)
}

// Status reports the optimizer's full point-in-time view.
func (o *Optimizer) Status() SystemStatus {
	idle := o.Detector.CheckIdleState()
	usage, limits := o.Monitor.Usage()
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	return SystemStatus{
		Idle: idle, Queue: o.Scheduler.Status(), Usage: usage, Limits: limits,
		Available: o.Monitor.AvailableResources(), Running: running,
	}
}

// ExecutionHistory returns up to maxEntries most-recent dispatch records.
func (o *Optimizer) ExecutionHistory(maxEntries int) []ExecutionRecord {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	n := len(o.history)
	if maxEntries > 0 && maxEntries < n {
		n = maxEntries
	}
	out := make([]ExecutionRecord, n)
	copy(out, o.history[len(o.history)-n:])
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// PredictCompletionTimes simulates draining pending tasks (by descending
// priority) across predicted idle periods, returning a completion estimate
// per task id. Tasks that don't fit any predicted window fall back to an
// average-duration estimate appended after the last simulated completion.
func (o *Optimizer) PredictCompletionTimes() map[string]time.Time {
	now := time.Now()
	periods := PredictIdlePeriods(24)

	var pending []*Task
	o.Scheduler.mu.Lock()
	for _, t := range o.Scheduler.tasks {
		if t.Status == StatusPending && !o.Scheduler.scheduled[t.ID] {
			pending = append(pending, t)
		}
	}
	o.Scheduler.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Priority > pending[j].Priority })

	completion := make(map[string]time.Time)
	remaining := append([]*Task(nil), pending...)

	for _, period := range periods {
		if period.End.Before(now) || period.End.Equal(now) {
			continue
		}
		start := period.Start
		if start.Before(now) {
			start = now
		}
		current := start
		available := period.AvailableResources

		for len(remaining) > 0 && current.Before(period.End) {
			idx := -1
			for i, t := range remaining {
				depsMet := true
				for _, dep := range t.Dependencies {
					if _, done := completion[dep]; !done {
						depsMet = false
						break
					}
				}
				if !depsMet {
					continue
				}
				canExec := true
				for resource, required := range t.EstimatedResources {
					if avail, tracked := available[resource]; tracked && avail < required {
						canExec = false
						break
					}
				}
				if canExec {
					idx = i
					break
				}
			}
			if idx < 0 {
				break
			}
			task := remaining[idx]
			remaining = append(remaining[:idx], remaining[idx+1:]...)

			execTime := task.EstimatedDuration
			if remainingInPeriod := period.End.Sub(current); execTime > remainingInPeriod {
				execTime = remainingInPeriod
			}
			current = current.Add(execTime)
			completion[task.ID] = current
		}
	}

	if len(remaining) > 0 {
		var avgDuration time.Duration
		if len(pending) > 0 {
			var total time.Duration
			for _, t := range pending {
				total += t.EstimatedDuration
			}
			avgDuration = total / time.Duration(len(pending))
		} else {
			avgDuration = time.Minute
		}

		last := now
		for _, c := range completion {
			if c.After(last) {
				last = c
			}
		}
		for _, t := range remaining {
			last = last.Add(avgDuration)
			completion[t.ID] = last
		}
	}

	return completion
}
