package main

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/taskengine/internal/core/sleep"
)

// sleepBundle wires the Sleep-Time Optimizer's components together for main.
type sleepBundle struct {
	monitor   *sleep.ResourceMonitor
	scheduler *sleep.TaskScheduler
	detector  *sleep.SleepDetector
	registry  *sleep.BackgroundTaskRegistry
	optimizer *sleep.Optimizer
}

func newSleepBundle(meter metric.Meter) *sleepBundle {
	monitor := sleep.NewResourceMonitor()
	scheduler := sleep.NewTaskScheduler(monitor)
	detector := sleep.NewSleepDetector(monitor, 10*time.Second)
	registry := sleep.NewBackgroundTaskRegistry()
	opt := sleep.New(monitor, scheduler, detector, registry, meter)
	return &sleepBundle{monitor: monitor, scheduler: scheduler, detector: detector, registry: registry, optimizer: opt}
}
