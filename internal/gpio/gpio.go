package gpio

import (
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
	rpio "github.com/stianeikeland/go-rpio/v4"
)

// maxPin is the highest BCM GPIO line on the 40-pin header.
const maxPin = 27

// driver abstracts the memory-mapped GPIO registers for testing
type driver interface {
	Open() error
	Close() error
	Input(pin int)
	PullDown(pin int)
	Read(pin int) bool
}

type rpioDriver struct{}

func (rpioDriver) Open() error  { return rpio.Open() }
func (rpioDriver) Close() error { return rpio.Close() }

func (rpioDriver) Input(pin int)    { rpio.Pin(pin).Input() }
func (rpioDriver) PullDown(pin int) { rpio.Pin(pin).PullDown() }

func (rpioDriver) Read(pin int) bool { return rpio.Pin(pin).Read() == rpio.High }

// PIR reads a passive infrared sensor on a BCM GPIO pin.
type PIR struct {
	pin         int
	drv         driver
	initialized bool
	mu          sync.Mutex
}

func NewPIR(pin int) *PIR {
	return &PIR{pin: pin, drv: rpioDriver{}}
}

// Setup maps the GPIO registers and configures the pin as a pulled-down input.
func (p *PIR) Setup() error {
	errFactory := errors.New()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	if p.pin < 0 || p.pin > maxPin {
		return errFactory.WithData(ErrInvalidPin, p.pin)
	}

	if err := p.drv.Open(); err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}

	p.drv.PullDown(p.pin)
	p.drv.Input(p.pin)
	p.initialized = true

	return nil
}

// Read returns true while the sensor output is high.
func (p *PIR) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return false, errors.New().New(ErrNotInitialized)
	}

	return p.drv.Read(p.pin), nil
}

// Close unmaps the GPIO registers.
func (p *PIR) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	if err := p.drv.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	p.initialized = false

	return nil
}
