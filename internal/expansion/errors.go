package expansion

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrOpenFailed  = errors.ErrorCode("expansion_open_failed")
	ErrWriteFailed = errors.ErrActuatorFailure
	ErrInvalidLED  = errors.ErrInvalidArgument
)
