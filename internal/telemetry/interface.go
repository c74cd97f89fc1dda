package telemetry

import "time"

// Snapshot is one immutable reading of system telemetry.
type Snapshot struct {
	TemperatureC float64
	CPULoadPct   float64
	MemoryPct    float64
	DiskUsagePct float64
	DiskActive   bool
	Timestamp    time.Time
}

// Reader produces snapshots; implemented by Sampler.
type Reader interface {
	ReadMetrics() (Snapshot, error)
}
