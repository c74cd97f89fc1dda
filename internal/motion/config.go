package motion

import "time"

const (
	DefaultStabilization  = 5 * time.Second
	DefaultSensitivity    = 30
	DefaultLogWindow      = 30 * time.Second
	DefaultMinLogDuration = 5 * time.Second
)

type Config struct {
	// PIREnabled false skips the PIR sensor and goes straight to the camera.
	PIREnabled    bool
	Stabilization time.Duration
	// Sensitivity is the frame size change, in tenths of a percent, above
	// which the camera reports motion.
	Sensitivity    int
	LogWindow      time.Duration
	MinLogDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		PIREnabled:     true,
		Stabilization:  DefaultStabilization,
		Sensitivity:    DefaultSensitivity,
		LogWindow:      DefaultLogWindow,
		MinLogDuration: DefaultMinLogDuration,
	}
}
