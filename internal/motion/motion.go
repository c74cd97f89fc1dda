package motion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
)

const (
	logKeyPIRRead = "pir_read"
	logKeyCapture = "camera_capture"
)

// Detector fuses the PIR sensor and the camera into a single stream of
// motion events. The source is chosen once by Initialize.
type Detector struct {
	cfg     Config
	pir     PIRSensor
	camera  FrameCapturer
	sink    logger.Sink
	limiter *logger.RateLimited

	state       State
	initialized bool
	readyAt     time.Time
	lastFrame   int64
	haveFrame   bool
	mu          sync.Mutex
}

// New creates a detector. pir may be nil when no sensor is wired.
func New(cfg Config, pir PIRSensor, camera FrameCapturer, sink logger.Sink) *Detector {
	return &Detector{
		cfg:     cfg,
		pir:     pir,
		camera:  camera,
		sink:    sink,
		limiter: logger.NewRateLimited(sink, cfg.LogWindow),
	}
}

// Initialize selects the motion source. A disabled or failing PIR sensor
// selects the camera for the rest of the run.
func (d *Detector) Initialize(now time.Time) Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = true
	d.state = State{Mode: ModeCamera}

	switch {
	case !d.cfg.PIREnabled || d.pir == nil:
		d.sink.Log(logger.WarnLevel, "PIR sensor disabled, using camera motion detection", now)
	default:
		if err := d.pir.Setup(); err != nil {
			d.sink.Log(logger.WarnLevel,
				fmt.Sprintf("PIR sensor unavailable, falling back to camera: %v", err), now)
			break
		}
		d.state.Mode = ModePIR
		d.readyAt = now.Add(d.cfg.Stabilization)
		d.sink.Log(logger.InfoLevel,
			fmt.Sprintf("PIR sensor initialized, stabilizing for %s", d.cfg.Stabilization), now)
	}

	return d.state.Mode
}

// Poll reads the selected source once and updates the episode state.
func (d *Detector) Poll(ctx context.Context, now time.Time) Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return Event{At: now}
	}

	ev := Event{Source: d.state.Mode, At: now}

	switch d.state.Mode {
	case ModePIR:
		if now.Before(d.readyAt) {
			return ev
		}
		ev.Triggered = d.readPIR(now)
	case ModeCamera:
		ev.Triggered = d.readCamera(ctx, now)
	}

	d.handleEdge(&ev)

	return ev
}

func (d *Detector) readPIR(now time.Time) bool {
	high, err := d.pir.Read()
	if err != nil {
		d.limiter.Log(logKeyPIRRead, logger.WarnLevel,
			fmt.Sprintf("Failed to read PIR sensor: %v", err), now)
		return false
	}

	return high
}

func (d *Detector) readCamera(ctx context.Context, now time.Time) bool {
	if d.camera == nil {
		return false
	}

	size, err := d.camera.Capture(ctx)
	if err != nil {
		d.limiter.Log(logKeyCapture, logger.WarnLevel,
			fmt.Sprintf("Failed to capture motion frame: %v", err), now)
		return false
	}

	prev, had := d.lastFrame, d.haveFrame
	d.lastFrame, d.haveFrame = size, true
	if !had {
		return false
	}

	return FrameChanged(prev, size, d.cfg.Sensitivity)
}

// FrameChanged reports whether the size difference between two frames, in
// tenths of a percent of prev, exceeds sensitivity. A zero prev never triggers.
func FrameChanged(prev, cur int64, sensitivity int) bool {
	if prev <= 0 {
		return false
	}

	diff := cur - prev
	if diff < 0 {
		diff = -diff
	}

	return diff*1000 > prev*int64(sensitivity)
}

func (d *Detector) handleEdge(ev *Event) {
	now := ev.At
	src := d.state.Mode.String()

	switch {
	case ev.Triggered && !d.state.Active:
		d.state.Active = true
		d.state.ActiveSince = now
		d.logMotion(fmt.Sprintf("Motion detected (%s)", src), now)
	case ev.Triggered:
		d.logMotion(fmt.Sprintf("Motion ongoing (%s)", src), now)
	case d.state.Active:
		duration := now.Sub(d.state.ActiveSince)
		d.state.Active = false
		d.state.ActiveSince = time.Time{}
		ev.Ended = true
		ev.Episode = duration
		if duration > d.cfg.MinLogDuration {
			d.sink.Log(logger.InfoLevel,
				fmt.Sprintf("Motion ended (%s) after %.1fs", src, duration.Seconds()), now)
		}
	}
}

// logMotion writes start and ongoing lines through one shared window.
func (d *Detector) logMotion(msg string, now time.Time) {
	if !d.state.LastLoggedAt.IsZero() && now.Sub(d.state.LastLoggedAt) < d.cfg.LogWindow {
		return
	}
	d.state.LastLoggedAt = now
	d.sink.Log(logger.InfoLevel, msg, now)
}

// State returns a copy of the current episode state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Mode returns the selected source.
func (d *Detector) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Mode
}
