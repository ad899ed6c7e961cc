// Package orchestrator implements the Task Orchestrator: a task table, DAG
// workflow execution, retries, and cancellation, per the teacher's DAG engine
// idiom adapted to the model-provider execution domain.
package orchestrator

import (
	"sync"
	"time"

	"github.com/swarmguard/taskengine/internal/provider"
)

// TaskStatus is a task's lifecycle state. Terminal states are monotonic: once
// set, no further transition is permitted.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Priority ranks a task for scheduling and sleep-time requeue decay.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// AttemptRecord is one entry in a task's append-only execution trace.
type AttemptRecord struct {
	Attempt   int
	StartedAt time.Time
	EndedAt   time.Time
	Error     string
}

// Task is the unit of work submitted to the orchestrator.
type Task struct {
	ID                   string
	Description          string
	Input                map[string]any
	Priority             Priority
	MaxRetries           int
	Timeout              time.Duration
	Dependencies         []string
	RequiredCapabilities []provider.Capability

	mu              sync.RWMutex
	status          TaskStatus
	retryCount      int
	createdAt       time.Time
	startedAt       time.Time
	completedAt     time.Time
	assignedProvider string
	assignedModel    string
	result          map[string]any
	errMsg          string
	trace           []AttemptRecord
}

// Snapshot is a consistent, read-only view of a task's current state.
type Snapshot struct {
	ID               string
	Description      string
	Status           TaskStatus
	Priority         Priority
	RetryCount       int
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	AssignedProvider string
	AssignedModel    string
	Result           map[string]any
	Error            string
	Trace            []AttemptRecord
}

func newTask(t Task) *Task {
	t.status = TaskPending
	t.createdAt = time.Now()
	return &t
}

// Snapshot returns a point-in-time copy of the task's state.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	trace := make([]AttemptRecord, len(t.trace))
	copy(trace, t.trace)
	return Snapshot{
		ID: t.ID, Description: t.Description, Status: t.status, Priority: t.Priority,
		RetryCount: t.retryCount, CreatedAt: t.createdAt, StartedAt: t.startedAt,
		CompletedAt: t.completedAt, AssignedProvider: t.assignedProvider,
		AssignedModel: t.assignedModel, Result: t.result, Error: t.errMsg, Trace: trace,
	}
}
