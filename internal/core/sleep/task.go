// Package sleep implements the Sleep-Time Optimizer: idle-window detection,
// a priority-decaying task queue, and a worker loop that drains it only while
// the system is judged idle.
package sleep

import "time"

// Priority ranks a sleep-time task. A failed task decays one level and
// requeues unless its error text contains "critical", which is terminal.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Status is a sleep-time task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is deferred work intended to run only during detected idle windows.
type Task struct {
	ID                  string
	Name                string
	Description         string
	Priority            Priority
	TaskType            string
	Parameters          map[string]any
	EstimatedDuration   time.Duration
	EstimatedResources  map[string]float64
	Dependencies        []string

	CreatedAt   time.Time
	ScheduledAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Status      Status
	Result      map[string]any
	Error       string
}
