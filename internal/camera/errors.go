package camera

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrCaptureFailed = errors.ErrSensorRead
	ErrCaptureDir    = errors.ErrorCode("camera_capture_dir_failed")
	ErrEmptyFrame    = errors.ErrorCode("camera_empty_frame")
)
