package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
)

// Sampler produces a fresh telemetry snapshot.
type Sampler interface {
	ReadMetrics() (telemetry.Snapshot, error)
}

type MotionDetector interface {
	Initialize(now time.Time) motion.Mode
	Poll(ctx context.Context, now time.Time) motion.Event
}

type DisplayController interface {
	OnMotionEvent(ctx context.Context, ev motion.Event, now time.Time) (display.Change, bool)
	Tick(ctx context.Context, now time.Time) (display.Change, bool)
	State() display.State
}

type FanController interface {
	Update(tempC float64, now time.Time) (on, changed bool)
}

// LEDOutput shows the indicator states.
type LEDOutput interface {
	Apply(states indicator.States) error
}

// Observer receives every refresh and event, e.g. for export.
type Observer interface {
	ObserveRefresh(snap telemetry.Snapshot, states indicator.States, fanOn, displayOn bool)
	ObserveRefreshError()
	ObserveMotionEpisode(source string, d time.Duration)
	ObserveDisplayChange(on bool)
}

// History persists samples and events.
type History = metrics.Collector
