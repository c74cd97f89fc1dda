package motion

import (
	"context"
	"time"
)

// Mode is the motion source selected at startup.
type Mode int

const (
	ModePIR Mode = iota
	ModeCamera
)

func (m Mode) String() string {
	switch m {
	case ModePIR:
		return "PIR"
	case ModeCamera:
		return "CAMERA"
	default:
		return "UNKNOWN"
	}
}

// PIRSensor is a passive infrared sensor wired to a digital input.
type PIRSensor interface {
	Setup() error
	Read() (bool, error)
}

// FrameCapturer captures one still frame and returns its encoded size in bytes.
type FrameCapturer interface {
	Capture(ctx context.Context) (int64, error)
}

// Event is the outcome of a single poll.
type Event struct {
	Triggered bool
	Source    Mode
	At        time.Time
	// Ended is set on the poll that closes an active episode, with its
	// length in Episode.
	Ended   bool
	Episode time.Duration
}

// State is the detector's view of the current motion episode.
type State struct {
	Mode         Mode
	Active       bool
	ActiveSince  time.Time
	LastLoggedAt time.Time
}
