package optimizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/swarmguard/taskengine/internal/core/engerr"
)

var bucketScheduleEntries = []byte("schedule_entries")

// ScheduleStatus is the lifecycle state of a ScheduleEntry.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
)

// ScheduleEntry is one reserved slot in the predictive batch scheduler's
// ready queue.
type ScheduleEntry struct {
	ID                 string
	Component          string
	BatchSize          int
	Priority           int
	Deadline           *time.Time
	PredictedDuration  time.Duration
	PredictedResources map[string]float64
	ScheduledAt        time.Time
	Status             ScheduleStatus
	seq                int64 // insertion order, for stable sort of equal keys
}

// WorkloadSample is one observed (batch_size, execution_time, resource_usage)
// data point, used to predict future batch cost.
type WorkloadSample struct {
	Timestamp     time.Time
	BatchSize     int
	ExecutionTime time.Duration
	ResourceUsage map[string]float64
}

const maxSamples = 1000

// PredictiveBatchScheduler maintains a priority-ordered ready queue of
// ScheduleEntry and a rolling window of WorkloadSample used to predict the
// time/resource cost of a future batch of a given size.
type PredictiveBatchScheduler struct {
	mu      sync.Mutex
	ledger  *Ledger
	entries []*ScheduleEntry
	samples []WorkloadSample
	nextSeq int64
	db      *bbolt.DB
}

// NewPredictiveBatchScheduler constructs a scheduler backed by the given
// ledger. db is optional; when non-nil, ScheduleEntries are persisted in a
// bbolt bucket and survive restart.
func NewPredictiveBatchScheduler(ledger *Ledger, db *bbolt.DB) (*PredictiveBatchScheduler, error) {
	s := &PredictiveBatchScheduler{ledger: ledger, db: db}
	if db != nil {
		if err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketScheduleEntries)
			return err
		}); err != nil {
			return nil, fmt.Errorf("init schedule bucket: %w", err)
		}
		if err := s.restore(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PredictiveBatchScheduler) restore() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScheduleEntries)
		return b.ForEach(func(k, v []byte) error {
			var e ScheduleEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			s.entries = append(s.entries, &e)
			return nil
		})
	})
}

func (s *PredictiveBatchScheduler) persist(e *ScheduleEntry) {
	if s.db == nil {
		return
	}
	data, _ := json.Marshal(e)
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScheduleEntries).Put([]byte(e.ID), data)
	})
}

func (s *PredictiveBatchScheduler) forget(id string) {
	if s.db == nil {
		return
	}
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScheduleEntries).Delete([]byte(id))
	})
}

// RecordWorkload appends an observed sample to the rolling window, capped at
// the 1000 most recent entries.
func (s *PredictiveBatchScheduler) RecordWorkload(sample WorkloadSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
}

// PredictExecutionTime estimates how long a batch of size n will take: the
// mean of samples within ±20% of n if any exist, else the nearest sample's
// time scaled linearly, else a default of 0.1s per unit.
func (s *PredictiveBatchScheduler) PredictExecutionTime(n int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictExecutionTimeLocked(n)
}

func (s *PredictiveBatchScheduler) predictExecutionTimeLocked(n int) time.Duration {
	if len(s.samples) == 0 {
		return time.Duration(float64(n) * 0.1 * float64(time.Second))
	}

	lo, hi := float64(n)*0.8, float64(n)*1.2
	var sum time.Duration
	var count int
	for _, sample := range s.samples {
		if float64(sample.BatchSize) >= lo && float64(sample.BatchSize) <= hi {
			sum += sample.ExecutionTime
			count++
		}
	}
	if count > 0 {
		return sum / time.Duration(count)
	}

	nearest := s.samples[0]
	bestDist := absInt(nearest.BatchSize - n)
	for _, sample := range s.samples[1:] {
		if d := absInt(sample.BatchSize - n); d < bestDist {
			nearest = sample
			bestDist = d
		}
	}
	if nearest.BatchSize == 0 {
		return time.Duration(float64(n) * 0.1 * float64(time.Second))
	}
	return time.Duration(float64(nearest.ExecutionTime) * float64(n) / float64(nearest.BatchSize))
}

// PredictResourceUsage applies the same prediction procedure per resource key.
func (s *PredictiveBatchScheduler) PredictResourceUsage(n int) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictResourceUsageLocked(n)
}

func (s *PredictiveBatchScheduler) predictResourceUsageLocked(n int) map[string]float64 {
	result := make(map[string]float64)
	if len(s.samples) == 0 {
		return result
	}

	lo, hi := float64(n)*0.8, float64(n)*1.2
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, sample := range s.samples {
		if float64(sample.BatchSize) >= lo && float64(sample.BatchSize) <= hi {
			for k, v := range sample.ResourceUsage {
				sums[k] += v
				counts[k]++
			}
		}
	}
	if len(counts) > 0 {
		for k, sum := range sums {
			result[k] = sum / float64(counts[k])
		}
		return result
	}

	nearest := s.samples[0]
	bestDist := absInt(nearest.BatchSize - n)
	for _, sample := range s.samples[1:] {
		if d := absInt(sample.BatchSize - n); d < bestDist {
			nearest = sample
			bestDist = d
		}
	}
	if nearest.BatchSize == 0 {
		return result
	}
	for k, v := range nearest.ResourceUsage {
		result[k] = v * float64(n) / float64(nearest.BatchSize)
	}
	return result
}

// Schedule reserves predicted credits for a batch of n items and, on success,
// appends a SCHEDULED entry re-sorted by (-priority, deadline-or-inf).
func (s *PredictiveBatchScheduler) Schedule(component string, n int, priority int, deadline *time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	predictedDuration := s.predictExecutionTimeLocked(n)
	predictedResources := s.predictResourceUsageLocked(n)

	predictedCredits := predictedResources["credits"]
	if s.ledger.Allocation(component) < predictedCredits {
		if !s.ledger.Allocate(component, predictedCredits) {
			return "", fmt.Errorf("reserve %v credits for %s: %w", predictedCredits, component, engerr.ErrInsufficientCredits)
		}
	}

	s.nextSeq++
	entry := &ScheduleEntry{
		ID:                 uuid.NewString(),
		Component:          component,
		BatchSize:          n,
		Priority:           priority,
		Deadline:           deadline,
		PredictedDuration:  predictedDuration,
		PredictedResources: predictedResources,
		ScheduledAt:        time.Now(),
		Status:             ScheduleStatusScheduled,
		seq:                s.nextSeq,
	}
	s.entries = append(s.entries, entry)
	s.sortLocked()
	s.persist(entry)
	return entry.ID, nil
}

// Next peeks the head of the queue, marks it running, and returns it.
func (s *PredictiveBatchScheduler) Next() *ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Status == ScheduleStatusScheduled {
			e.Status = ScheduleStatusRunning
			s.persist(e)
			return e
		}
	}
	return nil
}

// Complete records the actual outcome of entry id as a WorkloadSample,
// consumes the actual credits used, and removes the entry from the queue.
func (s *PredictiveBatchScheduler) Complete(id string, actualTime time.Duration, actualUsage map[string]float64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("schedule entry %q: %w", id, engerr.ErrNotFound)
	}

	entry := s.entries[idx]
	s.samples = append(s.samples, WorkloadSample{
		Timestamp: time.Now(), BatchSize: entry.BatchSize,
		ExecutionTime: actualTime, ResourceUsage: actualUsage,
	})
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}

	if credits, ok := actualUsage["credits"]; ok && credits > 0 {
		s.ledger.Use(entry.Component, credits)
	}

	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.forget(id)
	return nil
}

func (s *PredictiveBatchScheduler) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		ad, bd := deadlineOrInf(a.Deadline), deadlineOrInf(b.Deadline)
		if !ad.Equal(bd) {
			return ad.Before(bd)
		}
		return a.seq < b.seq
	})
}

func deadlineOrInf(d *time.Time) time.Time {
	if d == nil {
		return time.Unix(1<<62, 0)
	}
	return *d
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
