package sleep

import (
	"math"
	"sync"
	"time"
)

const maxUsageHistory = 1000

type usageSample struct {
	timestamp time.Time
	usage     map[string]float64
}

// IdleStatus reports whether the system currently looks idle and how much
// confidence the monitor has in that judgment.
type IdleStatus struct {
	IsIdle        bool
	IdleResources map[string]float64
	AvgUsage      map[string]float64
	Confidence    float64
}

// ResourceMonitor tracks resource usage samples and derives idle confidence
// from their recency and stability.
type ResourceMonitor struct {
	mu         sync.Mutex
	usage      map[string]float64
	limits     map[string]float64
	history    []usageSample
	lastUpdate time.Time
}

func NewResourceMonitor() *ResourceMonitor {
	return &ResourceMonitor{
		usage:      map[string]float64{"cpu": 0, "memory": 0, "credits": 0},
		limits:     map[string]float64{"cpu": 100, "memory": 1000, "credits": math.Inf(1)},
		lastUpdate: time.Now(),
	}
}

// UpdateUsage records a new sample for any provided resource keys, leaving
// unspecified resources unchanged.
func (m *ResourceMonitor) UpdateUsage(usage map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range usage {
		m.usage[k] = v
	}
	snapshot := make(map[string]float64, len(m.usage))
	for k, v := range m.usage {
		snapshot[k] = v
	}
	m.history = append(m.history, usageSample{timestamp: time.Now(), usage: snapshot})
	if len(m.history) > maxUsageHistory {
		m.history = m.history[len(m.history)-maxUsageHistory:]
	}
	m.lastUpdate = time.Now()
}

// SetLimits overrides resource limits for any provided keys.
func (m *ResourceMonitor) SetLimits(limits map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range limits {
		m.limits[k] = v
	}
}

// AvailableResources returns limit-minus-usage for every tracked resource,
// floored at zero.
func (m *ResourceMonitor) AvailableResources() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked(m.usage)
}

func (m *ResourceMonitor) availableLocked(usage map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m.usage))
	for resource := range m.usage {
		avail := m.limits[resource] - usage[resource]
		if avail < 0 {
			avail = 0
		}
		out[resource] = avail
	}
	return out
}

// CanExecute reports whether the task's estimated resource needs fit within
// currently available resources.
func (m *ResourceMonitor) CanExecute(t *Task) bool {
	available := m.AvailableResources()
	for resource, required := range t.EstimatedResources {
		if avail, tracked := available[resource]; tracked && avail < required {
			return false
		}
	}
	return true
}

// IdleStatus computes whether the system is idle from the last minute of
// usage history, with a confidence score blending data recency and
// stability, matching the original heuristic.
func (m *ResourceMonitor) IdleStatus() IdleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var recent []usageSample
	for _, s := range m.history {
		if now.Sub(s.timestamp) <= 60*time.Second {
			recent = append(recent, s)
		}
	}
	if len(recent) == 0 {
		return IdleStatus{IsIdle: true, IdleResources: m.availableLocked(m.usage), Confidence: 0.5}
	}

	avgUsage := make(map[string]float64, len(m.usage))
	for resource := range m.usage {
		var sum float64
		for _, s := range recent {
			sum += s.usage[resource]
		}
		avgUsage[resource] = sum / float64(len(recent))
	}

	isIdle := true
	for resource, limit := range m.limits {
		if avgUsage[resource] > limit*0.3 {
			isIdle = false
			break
		}
	}

	idleResources := m.availableLocked(avgUsage)

	dataAge := now.Sub(m.lastUpdate).Seconds()
	ageFactor := 1.0 - dataAge/60.0
	if ageFactor < 0 {
		ageFactor = 0
	}
	if ageFactor > 1 {
		ageFactor = 1
	}

	consistency := 1.0
	if len(recent) > 1 {
		for resource, limit := range m.limits {
			var sum float64
			for _, s := range recent {
				sum += s.usage[resource]
			}
			mean := sum / float64(len(recent))
			var variance float64
			for _, s := range recent {
				d := s.usage[resource] - mean
				variance += d * d
			}
			variance /= float64(len(recent))
			stdDev := math.Sqrt(variance)
			normalized := stdDev / math.Max(1.0, limit)
			resourceConsistency := 1.0 - normalized*5.0
			if resourceConsistency < 0 {
				resourceConsistency = 0
			}
			if resourceConsistency < consistency {
				consistency = resourceConsistency
			}
		}
	}

	confidence := (ageFactor + consistency) / 2.0

	return IdleStatus{IsIdle: isIdle, IdleResources: idleResources, AvgUsage: avgUsage, Confidence: confidence}
}

// Usage returns a copy of the current point usage and configured limits.
func (m *ResourceMonitor) Usage() (usage, limits map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := make(map[string]float64, len(m.usage))
	for k, v := range m.usage {
		u[k] = v
	}
	l := make(map[string]float64, len(m.limits))
	for k, v := range m.limits {
		l[k] = v
	}
	return u, l
}
