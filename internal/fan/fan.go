package fan

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

// Actuator switches the physical fan.
type Actuator interface {
	SetFan(on bool) error
}

// Controller applies two-threshold hysteresis to the raw temperature:
// on at or above onAt, off only below offAt, unchanged in between.
type Controller struct {
	onAt     float64
	offAt    float64
	on       bool
	applied  bool
	actuator Actuator
	sink     logger.Sink
	mu       sync.RWMutex
}

func New(onAt, offAt float64, actuator Actuator, sink logger.Sink) (*Controller, error) {
	errFactory := errors.New()

	if onAt <= offAt {
		return nil, errFactory.WithData(errors.ErrInvalidThreshold,
			fmt.Sprintf("fan on threshold %.1f must be above off threshold %.1f", onAt, offAt))
	}

	return &Controller{
		onAt:     onAt,
		offAt:    offAt,
		actuator: actuator,
		sink:     sink,
	}, nil
}

// Update feeds one temperature reading and returns the fan state and whether
// it changed. The actuator is called on changes and retried after failures.
func (c *Controller) Update(tempC float64, now time.Time) (on, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.on && tempC >= c.onAt:
		c.on, changed = true, true
		c.sink.Log(logger.InfoLevel, fmt.Sprintf("Fan on at %.1f°C", tempC), now)
	case c.on && tempC < c.offAt:
		c.on, changed = false, true
		c.sink.Log(logger.InfoLevel, fmt.Sprintf("Fan off at %.1f°C", tempC), now)
	}

	if changed || !c.applied {
		c.apply(now)
	}

	return c.on, changed
}

func (c *Controller) apply(now time.Time) {
	if c.actuator == nil {
		c.applied = true
		return
	}

	if err := c.actuator.SetFan(c.on); err != nil {
		c.applied = false
		c.sink.Log(logger.ErrorLevel, fmt.Sprintf("Failed to switch fan: %v", err), now)
		return
	}
	c.applied = true
}

// IsOn returns the current fan-on signal.
func (c *Controller) IsOn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.on
}

// Thresholds returns the on and off temperatures.
func (c *Controller) Thresholds() (onAt, offAt float64) {
	return c.onAt, c.offAt
}
