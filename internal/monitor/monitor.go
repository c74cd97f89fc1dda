package monitor

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/pimonitor/internal/display"
	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"codeberg.org/mutker/pimonitor/internal/motion"
	"codeberg.org/mutker/pimonitor/internal/telemetry"
)

const (
	logKeySample  = "sample"
	logKeyLEDs    = "leds"
	logKeyHistory = "history"

	errorLogWindow = time.Minute
)

type Config struct {
	RefreshInterval time.Duration
	// PollInterval returns the motion poll cadence for the selected mode.
	PollInterval func(mode motion.Mode) time.Duration
}

type Components struct {
	Sampler  Sampler
	Detector MotionDetector
	Display  DisplayController
	Fan      FanController
	LEDs     LEDOutput
	History  History
	Observer Observer
	Sink     logger.Sink
}

// Monitor runs motion polling and metric refreshes on one goroutine. Each
// cadence keeps its own due time.
type Monitor struct {
	cfg Config
	Components

	limiter *logger.RateLimited
	now     func() time.Time

	mode         motion.Mode
	motionEvery  time.Duration
	nextMotion   time.Time
	nextRefresh  time.Time
	started      bool
	lastStates   indicator.States
	lastSnapshot telemetry.Snapshot
	fanOn        bool
}

func New(cfg Config, c Components) (*Monitor, error) {
	errFactory := errors.New()

	if cfg.RefreshInterval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, cfg.RefreshInterval)
	}
	if c.Sampler == nil || c.Detector == nil || c.Display == nil || c.Fan == nil || c.LEDs == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "missing monitor component")
	}
	if c.Sink == nil {
		c.Sink = logger.NewSink("monitor")
	}
	if c.History == nil {
		c.History = noopHistory{}
	}
	if c.Observer == nil {
		c.Observer = noopObserver{}
	}

	return &Monitor{
		cfg:        cfg,
		Components: c,
		limiter:    logger.NewRateLimited(c.Sink, errorLogWindow),
		now:        time.Now,
	}, nil
}

// Start selects the motion source and makes both cadences due at now.
func (m *Monitor) Start(now time.Time) motion.Mode {
	m.mode = m.Detector.Initialize(now)
	m.motionEvery = m.cfg.RefreshInterval
	if m.cfg.PollInterval != nil {
		if d := m.cfg.PollInterval(m.mode); d > 0 {
			m.motionEvery = d
		}
	}
	m.nextMotion = now
	m.nextRefresh = now
	m.started = true

	m.Sink.Log(logger.InfoLevel, fmt.Sprintf("Monitoring started, motion source %s every %s, refresh every %s",
		m.mode, m.motionEvery, m.cfg.RefreshInterval), now)

	return m.mode
}

// Step runs whatever is due at now and returns the next due time.
func (m *Monitor) Step(ctx context.Context, now time.Time) time.Time {
	if !m.started {
		m.Start(now)
	}

	if !now.Before(m.nextMotion) {
		m.pollMotion(ctx, now)
		m.nextMotion = advance(m.nextMotion, m.motionEvery, now)
	}

	if change, ok := m.Display.Tick(ctx, now); ok {
		m.displayChanged(ctx, change, now)
	}

	if !now.Before(m.nextRefresh) {
		m.refresh(ctx, now)
		m.nextRefresh = advance(m.nextRefresh, m.cfg.RefreshInterval, now)
	}

	return m.NextDue()
}

// NextDue returns the earliest due time of the two cadences.
func (m *Monitor) NextDue() time.Time {
	if m.nextRefresh.Before(m.nextMotion) {
		return m.nextRefresh
	}
	return m.nextMotion
}

// advance moves a due time forward by whole periods past now, so a stalled
// loop does not replay missed ticks.
func advance(due time.Time, every time.Duration, now time.Time) time.Time {
	due = due.Add(every)
	if !due.After(now) {
		missed := now.Sub(due)/every + 1
		due = due.Add(missed * every)
	}
	return due
}

// Run steps until ctx is done, sleeping until the next due time.
func (m *Monitor) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next := m.Step(ctx, m.now())
		wait := next.Sub(m.now())
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) pollMotion(ctx context.Context, now time.Time) {
	ev := m.Detector.Poll(ctx, now)

	if ev.Ended {
		m.Observer.ObserveMotionEpisode(ev.Source.String(), ev.Episode)
		m.recordEvent(ctx, &metrics.Event{
			Timestamp: now,
			Kind:      metrics.EventMotion,
			Source:    ev.Source.String(),
			Duration:  ev.Episode,
		}, now)
	}

	if change, ok := m.Display.OnMotionEvent(ctx, ev, now); ok {
		m.displayChanged(ctx, change, now)
	}
}

func (m *Monitor) displayChanged(ctx context.Context, change display.Change, now time.Time) {
	m.Observer.ObserveDisplayChange(change.On)

	kind := metrics.EventDisplayOff
	if change.On {
		kind = metrics.EventDisplayOn
	}
	m.recordEvent(ctx, &metrics.Event{Timestamp: now, Kind: kind, Source: change.Source}, now)
}

func (m *Monitor) refresh(ctx context.Context, now time.Time) {
	snap, err := m.Sampler.ReadMetrics()
	if err != nil {
		m.Observer.ObserveRefreshError()
		m.limiter.Log(logKeySample, logger.ErrorLevel, fmt.Sprintf("Failed to read metrics: %v", err), now)
		return
	}
	m.limiter.Reset(logKeySample)

	states := indicator.Evaluate(snap)
	if err := m.LEDs.Apply(states); err != nil {
		m.limiter.Log(logKeyLEDs, logger.WarnLevel, fmt.Sprintf("Failed to update LEDs: %v", err), now)
	}

	fanOn, _ := m.Fan.Update(snap.TemperatureC, now)
	displayOn := m.Display.State().PoweredOn

	logger.Debug().
		Float64("temperature", snap.TemperatureC).
		Float64("cpu_load", snap.CPULoadPct).
		Float64("memory", snap.MemoryPct).
		Float64("disk_usage", snap.DiskUsagePct).
		Bool("disk_active", snap.DiskActive).
		Str("led_temp", states.Temp.String()).
		Str("led_cpu", states.CPU.String()).
		Str("led_disk", states.Disk.String()).
		Str("led_health", states.Health.String()).
		Bool("fan_on", fanOn).
		Bool("display_on", displayOn).
		Msg("")

	m.Observer.ObserveRefresh(snap, states, fanOn, displayOn)

	if err := m.History.RecordSample(ctx, &metrics.Sample{
		Timestamp: now,
		Telemetry: metrics.TelemetryMetrics{
			TemperatureC: snap.TemperatureC,
			CPULoadPct:   snap.CPULoadPct,
			MemoryPct:    snap.MemoryPct,
			DiskUsagePct: snap.DiskUsagePct,
			DiskActive:   snap.DiskActive,
		},
		LEDs: metrics.LEDMetrics{
			Temp:   states.Temp.String(),
			CPU:    states.CPU.String(),
			Disk:   states.Disk.String(),
			Health: states.Health.String(),
		},
		FanOn:      fanOn,
		DisplayOn:  displayOn,
		MotionMode: m.mode.String(),
	}); err != nil {
		m.limiter.Log(logKeyHistory, logger.WarnLevel, fmt.Sprintf("Failed to record sample: %v", err), now)
	}

	m.lastSnapshot = snap
	m.lastStates = states
	m.fanOn = fanOn
}

func (m *Monitor) recordEvent(ctx context.Context, ev *metrics.Event, now time.Time) {
	if err := m.History.RecordEvent(ctx, ev); err != nil {
		m.limiter.Log(logKeyHistory, logger.WarnLevel, fmt.Sprintf("Failed to record event: %v", err), now)
	}
}

// Status is the outcome of the most recent successful refresh.
type Status struct {
	Mode     motion.Mode
	Snapshot telemetry.Snapshot
	States   indicator.States
	FanOn    bool
}

// Status reports the last refresh outcome. Call it only after Run returns.
func (m *Monitor) Status() Status {
	return Status{
		Mode:     m.mode,
		Snapshot: m.lastSnapshot,
		States:   m.lastStates,
		FanOn:    m.fanOn,
	}
}

type noopHistory struct{}

func (noopHistory) RecordSample(context.Context, *metrics.Sample) error { return nil }
func (noopHistory) RecordEvent(context.Context, *metrics.Event) error   { return nil }
func (noopHistory) Close() error                                        { return nil }

type noopObserver struct{}

func (noopObserver) ObserveRefresh(telemetry.Snapshot, indicator.States, bool, bool) {}
func (noopObserver) ObserveRefreshError()                                            {}
func (noopObserver) ObserveMotionEpisode(string, time.Duration)                      {}
func (noopObserver) ObserveDisplayChange(bool)                                       {}
