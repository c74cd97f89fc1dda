package display

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrUnsupportedMethod = errors.ErrActuatorUnsupported
	ErrTotalFailure      = errors.ErrActuatorFailure
	ErrCommandFailed     = errors.ErrorCode("display_command_failed")
)
