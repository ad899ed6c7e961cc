package sleep

import "time"

// night and lunch are the hardcoded idle windows inherited from the original
// heuristic: local-time hours [0,6) and [12,13).
var (
	nightWindowStart = 0
	nightWindowEnd   = 6
	lunchWindowStart = 12
	lunchWindowEnd   = 13
)

// IdleState is a point-in-time judgment of system idleness with how long it
// has held and the monitor's confidence in it.
type IdleState struct {
	IsIdle        bool
	IdleDuration  time.Duration
	IdleResources map[string]float64
	Confidence    float64
}

// IdlePeriod is a predicted future window of availability.
type IdlePeriod struct {
	Start               time.Time
	End                 time.Time
	Duration            time.Duration
	AvailableResources  map[string]float64
	Confidence          float64
}

// SleepDetector debounces ResourceMonitor's instantaneous idle signal: the
// system is only considered idle once it has stayed below threshold for
// MinIdleTime, and predicts future idle windows from hardcoded night/lunch
// hours.
type SleepDetector struct {
	monitor      *ResourceMonitor
	minIdleTime  time.Duration
	idleStart    time.Time
	isIdle       bool
}

func NewSleepDetector(monitor *ResourceMonitor, minIdleTime time.Duration) *SleepDetector {
	return &SleepDetector{monitor: monitor, minIdleTime: minIdleTime}
}

// CheckIdleState updates and returns the debounced idle judgment.
func (d *SleepDetector) CheckIdleState() IdleState {
	status := d.monitor.IdleStatus()
	now := time.Now()

	if status.IsIdle {
		if !d.isIdle {
			if d.idleStart.IsZero() {
				d.idleStart = now
			} else if now.Sub(d.idleStart) >= d.minIdleTime {
				d.isIdle = true
			}
		}
	} else {
		d.isIdle = false
		d.idleStart = time.Time{}
	}

	var duration time.Duration
	if !d.idleStart.IsZero() {
		duration = now.Sub(d.idleStart)
	}

	return IdleState{
		IsIdle: d.isIdle, IdleDuration: duration,
		IdleResources: status.IdleResources, Confidence: status.Confidence,
	}
}

// PredictIdlePeriods projects hardcoded night/lunch idle windows over the
// next lookaheadHours.
func PredictIdlePeriods(lookaheadHours int) []IdlePeriod {
	now := time.Now()
	var periods []IdlePeriod

	for offset := 0; offset < lookaheadHours; offset++ {
		future := now.Add(time.Duration(offset) * time.Hour)
		hour := future.Hour()

		isNight := hour >= nightWindowStart && hour < nightWindowEnd
		isLunch := hour >= lunchWindowStart && hour < lunchWindowEnd
		if !isNight && !isLunch {
			continue
		}

		start := time.Date(future.Year(), future.Month(), future.Day(), hour, 0, 0, 0, future.Location())
		var endHour int
		var confidence float64
		var resources map[string]float64
		if isNight {
			endHour = nightWindowEnd
			confidence = 0.8
			resources = map[string]float64{"cpu": 90, "memory": 900, "credits": 100}
		} else {
			endHour = lunchWindowEnd
			confidence = 0.6
			resources = map[string]float64{"cpu": 50, "memory": 500, "credits": 20}
		}
		if hour >= endHour {
			continue
		}
		end := time.Date(future.Year(), future.Month(), future.Day(), endHour, 0, 0, 0, future.Location())

		periods = append(periods, IdlePeriod{
			Start: start, End: end, Duration: end.Sub(start),
			AvailableResources: resources, Confidence: confidence,
		})
	}
	return periods
}
