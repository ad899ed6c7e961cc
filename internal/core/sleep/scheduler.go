package sleep

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

type queueEntry struct {
	priorityScore int
	seq           int64
	taskID        string
}

type priorityQueue []*queueEntry

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priorityScore != q[j].priorityScore {
		return q[i].priorityScore < q[j].priorityScore
	}
	return q[i].seq < q[j].seq
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*queueEntry)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// TaskScheduler queues sleep-time tasks by priority (ties broken by
// insertion order) and releases the highest-priority ready task whose
// dependencies are satisfied and whose resource needs currently fit.
type TaskScheduler struct {
	mu        sync.Mutex
	monitor   *ResourceMonitor
	queue     priorityQueue
	nextSeq   int64
	tasks     map[string]*Task
	scheduled map[string]bool
	completed map[string]bool
	failed    map[string]bool
}

func NewTaskScheduler(monitor *ResourceMonitor) *TaskScheduler {
	return &TaskScheduler{
		monitor:   monitor,
		tasks:     make(map[string]*Task),
		scheduled: make(map[string]bool),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
	}
}

// Add enqueues a task. Duplicate ids are rejected.
func (s *TaskScheduler) Add(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("sleep task %q: %w", t.ID, engerr.ErrAlreadyExists)
	}
	t.Status = StatusPending
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.tasks[t.ID] = t
	s.pushLocked(t.ID, t.Priority)
	return nil
}

func (s *TaskScheduler) pushLocked(taskID string, priority Priority) {
	heap.Push(&s.queue, &queueEntry{priorityScore: -int(priority), seq: s.nextSeq, taskID: taskID})
	s.nextSeq++
}

// Get returns the task for id.
func (s *TaskScheduler) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Next pops the highest-priority task whose dependencies are completed,
// skipping (and re-queuing) any whose dependencies aren't met yet. If that
// task's resource needs do not fit current availability, Next returns nil
// without considering lower-priority tasks. Returns nil if nothing is ready.
func (s *TaskScheduler) Next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var waiting []*queueEntry
	defer func() {
		for _, e := range waiting {
			heap.Push(&s.queue, e)
		}
	}()
	for s.queue.Len() > 0 {
		top := s.queue[0]
		taskID := top.taskID
		task := s.tasks[taskID]

		if s.scheduled[taskID] || s.completed[taskID] {
			heap.Pop(&s.queue)
			continue
		}

		depsMet := true
		for _, dep := range task.Dependencies {
			if !s.completed[dep] {
				depsMet = false
				break
			}
		}
		if !depsMet {
			waiting = append(waiting, heap.Pop(&s.queue).(*queueEntry))
			continue
		}

		if !s.monitor.CanExecute(task) {
			return nil
		}

		heap.Pop(&s.queue)
		s.scheduled[taskID] = true
		task.Status = StatusScheduled
		task.ScheduledAt = time.Now()
		return task
	}
	return nil
}

// Complete marks a task completed with result.
func (s *TaskScheduler) Complete(id string, result map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Status = StatusCompleted
	t.CompletedAt = time.Now()
	t.Result = result
	delete(s.scheduled, id)
	s.completed[id] = true
	return true
}

// Fail marks a task failed. Unless errMsg names a "critical" error, the task
// decays one priority level (floor LOW) and is requeued as pending.
func (s *TaskScheduler) Fail(id string, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Status = StatusFailed
	t.CompletedAt = time.Now()
	t.Error = errMsg
	delete(s.scheduled, id)
	s.failed[id] = true

	if !strings.Contains(strings.ToLower(errMsg), "critical") {
		if t.Priority > PriorityLow {
			t.Priority--
		}
		t.Status = StatusPending
		t.ScheduledAt = time.Time{}
		t.CompletedAt = time.Time{}
		delete(s.failed, id)
		s.pushLocked(id, t.Priority)
	}
	return true
}

// QueueStatus summarizes queue depth by lifecycle stage and priority.
type QueueStatus struct {
	PendingCount   int
	ScheduledCount int
	CompletedCount int
	FailedCount    int
	TotalTasks     int
	PriorityCounts map[Priority]int
}

func (s *TaskScheduler) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[Priority]int{PriorityLow: 0, PriorityMedium: 0, PriorityHigh: 0, PriorityCritical: 0}
	for _, e := range s.queue {
		counts[s.tasks[e.taskID].Priority]++
	}
	return QueueStatus{
		PendingCount: s.queue.Len(), ScheduledCount: len(s.scheduled),
		CompletedCount: len(s.completed), FailedCount: len(s.failed),
		TotalTasks: len(s.tasks), PriorityCounts: counts,
	}
}

// AllTasks returns every task the scheduler knows about.
func (s *TaskScheduler) AllTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}
