package metrics

import (
	"context"
	"time"
)

// Collector records monitor history.
type Collector interface {
	RecordSample(ctx context.Context, sample *Sample) error
	RecordEvent(ctx context.Context, event *Event) error
	Close() error
}

// Repository stores history rows.
type Repository interface {
	RecordSample(sample *Sample) error
	RecordEvent(event *Event) error
	Close() error
}

// Sample is one refresh of the monitor.
type Sample struct {
	Timestamp  time.Time
	Telemetry  TelemetryMetrics
	LEDs       LEDMetrics
	FanOn      bool
	DisplayOn  bool
	MotionMode string
}

type TelemetryMetrics struct {
	TemperatureC float64
	CPULoadPct   float64
	MemoryPct    float64
	DiskUsagePct float64
	DiskActive   bool
}

type LEDMetrics struct {
	Temp   string
	CPU    string
	Disk   string
	Health string
}

// Event kinds.
const (
	EventMotion     = "motion"
	EventDisplayOn  = "display_on"
	EventDisplayOff = "display_off"
)

func validEventKind(kind string) bool {
	switch kind {
	case EventMotion, EventDisplayOn, EventDisplayOff:
		return true
	default:
		return false
	}
}

// Event is a motion episode or display power change.
type Event struct {
	Timestamp time.Time
	Kind      string
	Source    string
	Duration  time.Duration
}
