package expansion

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/indicator"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

// LED positions on the board.
const (
	LEDTemp = iota
	LEDCPU
	LEDDisk
	LEDHealth
)

var (
	colorRed     = Color{255, 0, 0}
	colorGreen   = Color{0, 255, 0}
	colorBlue    = Color{0, 0, 255}
	colorYellow  = Color{255, 255, 0}
	colorOrange  = Color{255, 165, 0}
	colorWhite   = Color{255, 255, 255}
	colorDimBlue = Color{0, 0, 100}
)

// Colors maps the indicator states to the four LED colors.
func Colors(s indicator.States) [LEDCount]Color {
	var out [LEDCount]Color

	switch s.Temp {
	case indicator.Cool:
		out[LEDTemp] = colorGreen
	case indicator.Warm:
		out[LEDTemp] = colorYellow
	case indicator.Hot:
		out[LEDTemp] = colorOrange
	case indicator.VeryHot:
		out[LEDTemp] = colorRed
	}

	switch s.CPU {
	case indicator.Low:
		out[LEDCPU] = colorBlue
	case indicator.Light:
		out[LEDCPU] = colorGreen
	case indicator.Moderate:
		out[LEDCPU] = colorYellow
	case indicator.Heavy:
		out[LEDCPU] = colorRed
	}

	switch s.Disk {
	case indicator.Full:
		out[LEDDisk] = colorRed
	case indicator.Active:
		out[LEDDisk] = colorWhite
	case indicator.Idle:
		out[LEDDisk] = colorDimBlue
	}

	switch s.Health {
	case indicator.Normal:
		out[LEDHealth] = colorGreen
	case indicator.Warning:
		out[LEDHealth] = colorYellow
	case indicator.Critical:
		out[LEDHealth] = colorRed
	}

	return out
}

// ledWriter is the part of Board the outputs need.
type ledWriter interface {
	SetLEDMode(mode byte) error
	SetLEDColor(id int, c Color) error
	SetFanMode(mode byte) error
	SetFanDuty(duty0, duty1 uint8) error
	Close() error
}

// Outputs drives the status LEDs and the fan through the board. LEDs are
// written only when their color changes.
type Outputs struct {
	board   ledWriter
	current [LEDCount]Color
	written [LEDCount]bool
	ready   bool
	fanSet  bool
	mu      sync.Mutex
}

func NewOutputs(board *Board) *Outputs {
	return &Outputs{board: board}
}

// Apply writes the LEDs whose color differs from the last successful write.
func (o *Outputs) Apply(s indicator.States) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.ready {
		if err := o.board.SetLEDMode(LEDModeManual); err != nil {
			return err
		}
		o.ready = true
	}

	var errs []error
	for id, c := range Colors(s) {
		if o.written[id] && o.current[id] == c {
			continue
		}
		if err := o.board.SetLEDColor(id, c); err != nil {
			errs = append(errs, err)
			o.written[id] = false
			continue
		}
		o.current[id] = c
		o.written[id] = true
	}

	return errors.Join(errs...)
}

// SetFan runs the fan at full duty or stops it.
func (o *Outputs) SetFan(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.fanSet {
		if err := o.board.SetFanMode(FanModeManual); err != nil {
			return err
		}
		o.fanSet = true
	}

	var duty uint8
	if on {
		duty = FanDutyMax
	}

	return o.board.SetFanDuty(duty, duty)
}

// Close resets the board and releases the bus.
func (o *Outputs) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.board.Close()
}

// LogOutputs stands in for the board when it cannot be opened: state
// changes are logged and nothing is written.
type LogOutputs struct {
	sink logger.Sink
	now  func() time.Time
	last indicator.States
	have bool
	mu   sync.Mutex
}

func NewLogOutputs(sink logger.Sink) *LogOutputs {
	return &LogOutputs{sink: sink, now: time.Now}
}

func (l *LogOutputs) Apply(s indicator.States) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.have && l.last == s {
		return nil
	}
	l.last, l.have = s, true
	l.sink.Log(logger.DebugLevel, fmt.Sprintf("LEDs temp=%s cpu=%s disk=%s health=%s",
		s.Temp, s.CPU, s.Disk, s.Health), l.now())

	return nil
}

func (l *LogOutputs) SetFan(on bool) error {
	l.sink.Log(logger.DebugLevel, fmt.Sprintf("Fan signal on=%t", on), l.now())
	return nil
}
