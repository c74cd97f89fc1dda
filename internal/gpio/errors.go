package gpio

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrNotInitialized = errors.ErrorCode("gpio_not_initialized")
	ErrOpenFailed     = errors.ErrSensorUnavailable
	ErrCloseFailed    = errors.ErrShutdownFailed
	ErrInvalidPin     = errors.ErrorCode("gpio_invalid_pin")
)
