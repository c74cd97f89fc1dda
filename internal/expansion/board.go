package expansion

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

const (
	DefaultBus     = 1
	DefaultAddress = 0x21

	LEDCount = 4
)

const (
	regLEDSpecified = 0x01
	regLEDAll       = 0x02
	regLEDMode      = 0x03
	regFanMode      = 0x04
	regFanFrequency = 0x05
	regFanDuty      = 0x06
)

// LED running modes.
const (
	LEDModeOff    = 0
	LEDModeManual = 1
)

// Fan running modes.
const (
	FanModeAuto   = 0
	FanModeManual = 1
)

const (
	FanDutyMax = 255
	// board default PWM frequency restored on shutdown, in Hz
	fanDefaultFrequency = 50
)

// Color is an RGB LED color.
type Color struct {
	R, G, B uint8
}

// Board drives the LEDs and fan of the I2C expansion board.
type Board struct {
	bus bus
	mu  sync.Mutex
}

// Open connects to the board on /dev/i2c-<busNum> at addr.
func Open(busNum, addr int) (*Board, error) {
	dev, err := openI2C(busNum, addr)
	if err != nil {
		return nil, err
	}

	return &Board{bus: dev}, nil
}

func (b *Board) write(reg byte, values ...byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, 0, len(values)+1)
	buf = append(buf, reg)
	buf = append(buf, values...)

	if _, err := b.bus.Write(buf); err != nil {
		return errors.New().Wrap(ErrWriteFailed, fmt.Errorf("register %#02x: %w", reg, err))
	}

	return nil
}

func (b *Board) SetLEDMode(mode byte) error {
	return b.write(regLEDMode, mode)
}

// SetLEDColor sets the color of LED id (0..3).
func (b *Board) SetLEDColor(id int, c Color) error {
	if id < 0 || id >= LEDCount {
		return errors.New().WithData(ErrInvalidLED, id)
	}

	return b.write(regLEDSpecified, byte(id), c.R, c.G, c.B)
}

func (b *Board) SetAllLEDColor(c Color) error {
	return b.write(regLEDAll, c.R, c.G, c.B)
}

func (b *Board) SetFanMode(mode byte) error {
	return b.write(regFanMode, mode)
}

// SetFanFrequency sets the fan PWM frequency in Hz.
func (b *Board) SetFanFrequency(hz uint32) error {
	return b.write(regFanFrequency, byte(hz>>24), byte(hz>>16), byte(hz>>8), byte(hz))
}

// SetFanDuty sets the duty cycle of both fan channels (0..255).
func (b *Board) SetFanDuty(duty0, duty1 uint8) error {
	return b.write(regFanDuty, duty0, duty1)
}

// Close switches all LEDs off, hands the fan back to the board and releases
// the bus. Every step is attempted.
func (b *Board) Close() error {
	errs := []error{
		b.SetLEDMode(LEDModeManual),
		b.SetAllLEDColor(Color{}),
		b.SetFanMode(FanModeAuto),
		b.SetFanFrequency(fanDefaultFrequency),
		b.SetFanDuty(0, 0),
	}

	b.mu.Lock()
	errs = append(errs, b.bus.Close())
	b.mu.Unlock()

	return errors.Join(errs...)
}
