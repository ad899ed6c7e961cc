// Package batch implements the Batch Controller: grouping pending tasks into
// batches via pluggable rules and executing them through the Task
// Orchestrator with a concurrency cap.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/core/orchestrator"
)

// Rule recommends a batch size for a set of pending tasks given the current
// system state. Registered by id; loading is a typed registry, not dynamic
// dispatch on a module path.
type Rule interface {
	Evaluate(tasks []*orchestrator.Task, systemState map[string]any) int
}

// Config controls batch formation and execution.
type Config struct {
	MaxBatchSize        int
	MinBatchSize        int
	MaxWaitTime         time.Duration
	SimilarityThreshold  float64
	Priority             orchestrator.Priority
	MaxConcurrentTasks   int
	StopOnFirstFailure   bool
}

// DefaultConfig matches the original's defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 10, MinBatchSize: 1, MaxWaitTime: 5 * time.Second,
		SimilarityThreshold: 0.7, Priority: orchestrator.PriorityMedium,
		MaxConcurrentTasks: 4,
	}
}

// Status is a batch's lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Batch is a group of tasks formed for bulk concurrent execution.
type Batch struct {
	ID        string
	Tasks     []orchestrator.Task
	Config    Config
	StartedAt time.Time
	EndedAt   time.Time
	Status    Status
	Results   map[string]orchestrator.WorkflowResult
	Completed int
	Failed    int
	Cancelled int

	mu sync.Mutex
}

// Controller manages pending tasks, in-flight batches, and a typed registry
// of batch-sizing rules.
type Controller struct {
	mu        sync.Mutex
	pending   []orchestrator.Task
	active    map[string]*Batch
	completed map[string]*Batch
	rules     map[string]Rule

	orch          *orchestrator.Orchestrator
	defaultConfig Config

	batchesTotal  metric.Int64Counter
	batchFailures metric.Int64Counter
	tracer        trace.Tracer
}

func New(orch *orchestrator.Orchestrator, meter metric.Meter) *Controller {
	batchesTotal, _ := meter.Int64Counter("taskengine_batches_total")
	batchFailures, _ := meter.Int64Counter("taskengine_batch_failures_total")
	return &Controller{
		active:        make(map[string]*Batch),
		completed:     make(map[string]*Batch),
		rules:         make(map[string]Rule),
		orch:          orch,
		defaultConfig: DefaultConfig(),
		batchesTotal:  batchesTotal,
		batchFailures: batchFailures,
		tracer:        otel.Tracer("taskengine-batch"),
	}
}

// Add appends a task to the pending FIFO.
func (c *Controller) Add(t orchestrator.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, t)
}

// RegisterRule adds a batch-sizing rule under id. Duplicate ids are rejected.
func (c *Controller) RegisterRule(id string, rule Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rules[id]; exists {
		return fmt.Errorf("rule %q: %w", id, engerr.ErrAlreadyExists)
	}
	c.rules[id] = rule
	return nil
}

// GetRule returns the rule registered under id.
func (c *Controller) GetRule(id string) (Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rule, ok := c.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", id, engerr.ErrNotFound)
	}
	return rule, nil
}

// FormBatch takes min(config.MaxBatchSize, len(pending)) tasks from the head
// of the pending queue. Returns nil without mutating state if that count is
// below config.MinBatchSize.
func (c *Controller) FormBatch(config *Config) []orchestrator.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formBatchLocked(config)
}

func (c *Controller) formBatchLocked(config *Config) []orchestrator.Task {
	cfg := c.defaultConfig
	if config != nil {
		cfg = *config
	}
	if len(c.pending) == 0 {
		return nil
	}
	n := cfg.MaxBatchSize
	if n > len(c.pending) {
		n = len(c.pending)
	}
	if n < cfg.MinBatchSize {
		return nil
	}
	batch := c.pending[:n]
	c.pending = c.pending[n:]
	return batch
}

// FormOptimal evaluates each named rule, averages their recommendations
// (rounded down), and extracts that many pending tasks. Falls back to
// FormBatch when every rule fails to load or evaluate.
func (c *Controller) FormOptimal(ruleIDs []string, systemState map[string]any) []orchestrator.Task {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	snapshot := make([]*orchestrator.Task, 0, len(c.pending))
	for i := range c.pending {
		snapshot = append(snapshot, &c.pending[i])
	}
	c.mu.Unlock()

	var sizes []int
	for _, id := range ruleIDs {
		rule, err := c.GetRule(id)
		if err != nil {
			continue
		}
		sizes = append(sizes, rule.Evaluate(snapshot, systemState))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(sizes) == 0 {
		return c.formBatchLocked(nil)
	}

	sum := 0
	for _, s := range sizes {
		sum += s
	}
	avg := sum / len(sizes)
	if avg > len(c.pending) {
		avg = len(c.pending)
	}
	if avg <= 0 {
		return nil
	}
	batch := c.pending[:avg]
	c.pending = c.pending[avg:]
	return batch
}

// CreateBatch allocates a batch id for tasks under config and tracks it as active.
func (c *Controller) CreateBatch(tasks []orchestrator.Task, config Config) string {
	b := &Batch{
		ID: uuid.NewString(), Tasks: tasks, Config: config,
		Status: StatusScheduled, Results: make(map[string]orchestrator.WorkflowResult),
	}
	c.mu.Lock()
	c.active[b.ID] = b
	c.mu.Unlock()
	return b.ID
}

// ExecuteBatch runs a batch's member tasks through the Task Orchestrator with
// a concurrency cap. If StopOnFirstFailure is set, remaining unstarted
// members are cancelled on the first failure.
func (c *Controller) ExecuteBatch(ctx context.Context, batchID string) error {
	c.mu.Lock()
	b, ok := c.active[batchID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("batch %q: %w", batchID, engerr.ErrNotFound)
	}

	ctx, span := c.tracer.Start(ctx, "batch.execute", trace.WithAttributes(attribute.String("batch_id", batchID)))
	defer span.End()

	b.mu.Lock()
	b.Status = StatusRunning
	b.StartedAt = time.Now()
	b.mu.Unlock()

	ids := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		id, err := c.orch.Submit(t)
		if err != nil {
			id = t.ID
		}
		ids[i] = id
	}

	concurrency := b.Config.MaxConcurrentTasks
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var stopRemaining bool
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string, idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			stop := stopRemaining
			mu.Unlock()
			if stop {
				c.orch.Cancel(id)
				b.mu.Lock()
				b.Cancelled++
				b.Results[id] = orchestrator.WorkflowResult{Error: "cancelled: stop_on_first_failure"}
				b.mu.Unlock()
				return
			}

			err := c.orch.Execute(ctx, id)
			snap, _ := c.orch.GetStatus(id)

			b.mu.Lock()
			switch snap.Status {
			case orchestrator.TaskCompleted:
				b.Completed++
				b.Results[id] = orchestrator.WorkflowResult{Result: snap.Result}
			case orchestrator.TaskCancelled:
				b.Cancelled++
				b.Results[id] = orchestrator.WorkflowResult{Error: "cancelled"}
			default:
				b.Failed++
				b.Results[id] = orchestrator.WorkflowResult{Error: errString(err, snap.Error)}
				if b.Config.StopOnFirstFailure {
					mu.Lock()
					stopRemaining = true
					mu.Unlock()
				}
			}
			b.mu.Unlock()
		}(id, i)
	}
	wg.Wait()

	b.mu.Lock()
	b.EndedAt = time.Now()
	if b.Failed == 0 {
		b.Status = StatusCompleted
	} else {
		b.Status = StatusFailed
	}
	b.mu.Unlock()

	c.mu.Lock()
	delete(c.active, batchID)
	c.completed[batchID] = b
	c.mu.Unlock()

	c.batchesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("batch_id", batchID)))
	if b.Failed > 0 {
		c.batchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("batch_id", batchID)))
	}
	return nil
}

func errString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// GetStatus returns the batch for id, checking active then completed.
func (c *Controller) GetStatus(id string) (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.active[id]; ok {
		return b, nil
	}
	if b, ok := c.completed[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("batch %q: %w", id, engerr.ErrNotFound)
}

// GetTasks returns the task definitions belonging to batch id.
func (c *Controller) GetTasks(id string) ([]orchestrator.Task, error) {
	b, err := c.GetStatus(id)
	if err != nil {
		return nil, err
	}
	return b.Tasks, nil
}

// Cancel cancels every in-flight task of an active batch.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	b, ok := c.active[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("batch %q: %w", id, engerr.ErrNotFound)
	}
	for _, t := range b.Tasks {
		c.orch.Cancel(t.ID)
	}
	return nil
}

// Stats summarizes pending/active/completed batch counts and averages.
type Stats struct {
	PendingTasks     int
	ActiveBatches    int
	CompletedBatches int
	AvgBatchSize     float64
	AvgProcessingMs  float64
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{PendingTasks: len(c.pending), ActiveBatches: len(c.active), CompletedBatches: len(c.completed)}
	if len(c.completed) == 0 {
		return s
	}

	var totalTasks int
	var totalDuration time.Duration
	var timed int
	for _, b := range c.completed {
		totalTasks += len(b.Tasks)
		if !b.StartedAt.IsZero() && !b.EndedAt.IsZero() {
			totalDuration += b.EndedAt.Sub(b.StartedAt)
			timed++
		}
	}
	s.AvgBatchSize = float64(totalTasks) / float64(len(c.completed))
	if timed > 0 {
		s.AvgProcessingMs = float64(totalDuration.Milliseconds()) / float64(timed)
	}
	return s
}
