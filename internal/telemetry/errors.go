package telemetry

import "codeberg.org/mutker/pimonitor/internal/errors"

const (
	ErrInvalidConfig     = errors.ErrInvalidConfig
	ErrTemperatureRead   = errors.ErrorCode("telemetry_temperature_read_failed")
	ErrCPURead           = errors.ErrorCode("telemetry_cpu_read_failed")
	ErrMemoryRead        = errors.ErrorCode("telemetry_memory_read_failed")
	ErrDiskUsageRead     = errors.ErrorCode("telemetry_disk_usage_read_failed")
	ErrDiskActivityRead  = errors.ErrorCode("telemetry_disk_activity_read_failed")
	ErrMetricsCollection = errors.ErrorCode("telemetry_metrics_collection_failed")
)
