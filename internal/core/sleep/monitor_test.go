package sleep

import "testing"

func TestResourceMonitorAvailableResourcesFloorsAtZero(t *testing.T) {
	m := NewResourceMonitor()
	m.SetLimits(map[string]float64{"cpu": 100})
	m.UpdateUsage(map[string]float64{"cpu": 150})

	avail := m.AvailableResources()
	if avail["cpu"] != 0 {
		t.Fatalf("expected available cpu floored at 0, got %v", avail["cpu"])
	}
}

func TestResourceMonitorIdleStatusNotIdleUnderLoad(t *testing.T) {
	m := NewResourceMonitor()
	m.SetLimits(map[string]float64{"cpu": 100, "memory": 1000, "credits": 1000})
	m.UpdateUsage(map[string]float64{"cpu": 80, "memory": 100, "credits": 10})

	status := m.IdleStatus()
	if status.IsIdle {
		t.Fatalf("expected not idle at 80%% cpu usage")
	}
}

func TestResourceMonitorIdleStatusIdleAtLowUsage(t *testing.T) {
	m := NewResourceMonitor()
	m.SetLimits(map[string]float64{"cpu": 100, "memory": 1000, "credits": 1000})
	for i := 0; i < 3; i++ {
		m.UpdateUsage(map[string]float64{"cpu": 20, "memory": 200, "credits": 20})
	}

	status := m.IdleStatus()
	if !status.IsIdle {
		t.Fatalf("expected idle at 20%% usage, got avg=%v", status.AvgUsage)
	}
	if status.Confidence < 0.3 {
		t.Fatalf("expected reasonable confidence, got %v", status.Confidence)
	}
}

func TestResourceMonitorCanExecute(t *testing.T) {
	m := NewResourceMonitor()
	m.SetLimits(map[string]float64{"cpu": 100})
	m.UpdateUsage(map[string]float64{"cpu": 90})

	cheap := &Task{EstimatedResources: map[string]float64{"cpu": 5}}
	if !m.CanExecute(cheap) {
		t.Fatalf("expected cheap task to fit in 10 available cpu")
	}

	expensive := &Task{EstimatedResources: map[string]float64{"cpu": 50}}
	if m.CanExecute(expensive) {
		t.Fatalf("expected expensive task to not fit in 10 available cpu")
	}
}
