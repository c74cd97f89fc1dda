package telemetry

import (
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
)

const (
	defaultProcRoot     = "/proc"
	defaultThermalZone  = "/sys/class/thermal/thermal_zone0/temp"
	defaultDiskPath     = "/"
	defaultActivityHold = 2 * time.Second
)

type Config struct {
	ProcRoot    string
	ThermalZone string
	DiskPath    string
	// ActivityHold keeps DiskActive set for this long after the last I/O.
	ActivityHold time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProcRoot:     defaultProcRoot,
		ThermalZone:  defaultThermalZone,
		DiskPath:     defaultDiskPath,
		ActivityHold: defaultActivityHold,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.ProcRoot == "" || c.ThermalZone == "" || c.DiskPath == "" {
		return errFactory.WithData(ErrInvalidConfig, "telemetry paths must be set")
	}
	if c.ActivityHold < 0 {
		return errFactory.WithData(ErrInvalidConfig, "activity hold must not be negative")
	}
	return nil
}
