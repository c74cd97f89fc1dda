package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/motion"
)

const DefaultTimeout = 60 * time.Second

const logKeyPowerFailure = "display_power"

// State is the believed power state of the secondary display.
type State struct {
	PoweredOn    bool
	LastMotionAt time.Time
}

// Change describes a power transition applied by the controller.
type Change struct {
	On     bool
	Source string
}

// Controller wakes the display on motion and puts it to sleep after timeout
// without motion.
type Controller struct {
	power   PowerSetter
	timeout time.Duration
	sink    logger.Sink
	limiter *logger.RateLimited
	state   State
	mu      sync.Mutex
}

// NewController creates a controller. With assumeOn the display is treated
// as powered on at start, so it sleeps after timeout if nobody moves.
func NewController(power PowerSetter, timeout time.Duration, assumeOn bool, start time.Time, sink logger.Sink) *Controller {
	c := &Controller{
		power:   power,
		timeout: timeout,
		sink:    sink,
		limiter: logger.NewRateLimited(sink, timeout),
	}
	if assumeOn {
		c.state = State{PoweredOn: true, LastMotionAt: start}
	}

	return c
}

// OnMotionEvent records motion and powers the display on if needed.
func (c *Controller) OnMotionEvent(ctx context.Context, ev motion.Event, now time.Time) (Change, bool) {
	if !ev.Triggered {
		return Change{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.LastMotionAt = now
	if c.state.PoweredOn {
		return Change{}, false
	}

	if !c.set(ctx, true, now) {
		return Change{}, false
	}
	c.sink.Log(logger.InfoLevel, fmt.Sprintf("Display on, motion detected by %s", ev.Source), now)

	return Change{On: true, Source: ev.Source.String()}, true
}

// Tick powers the display off once timeout has passed since the last motion.
func (c *Controller) Tick(ctx context.Context, now time.Time) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.PoweredOn || now.Sub(c.state.LastMotionAt) < c.timeout {
		return Change{}, false
	}

	if !c.set(ctx, false, now) {
		return Change{}, false
	}
	c.sink.Log(logger.InfoLevel,
		fmt.Sprintf("Display off, no motion for %s", now.Sub(c.state.LastMotionAt).Truncate(time.Second)), now)

	return Change{On: false, Source: "timeout"}, true
}

func (c *Controller) set(ctx context.Context, on bool, now time.Time) bool {
	if err := c.power.SetPower(ctx, on); err != nil {
		c.limiter.Log(logKeyPowerFailure, logger.ErrorLevel,
			fmt.Sprintf("Failed to switch display %s: %v", onOff(on, "on", "off"), err), now)
		return false
	}
	c.limiter.Reset(logKeyPowerFailure)
	c.state.PoweredOn = on

	return true
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
