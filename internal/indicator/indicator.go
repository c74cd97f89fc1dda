// Package indicator maps telemetry snapshots onto the four status LED states.
package indicator

import "codeberg.org/mutker/pimonitor/internal/telemetry"

type (
	TempState   uint8
	CPUState    uint8
	DiskState   uint8
	HealthState uint8
)

const (
	Cool TempState = iota
	Warm
	Hot
	VeryHot
)

const (
	Low CPUState = iota
	Light
	Moderate
	Heavy
)

const (
	Idle DiskState = iota
	Active
	Full
)

const (
	Normal HealthState = iota
	Warning
	Critical
)

// Band edges, lower bound inclusive.
const (
	tempWarm    = 40.0
	tempHot     = 50.0
	tempVeryHot = 60.0

	cpuLight    = 25.0
	cpuModerate = 50.0
	cpuHeavy    = 75.0

	diskFull = 90.0

	criticalTemp   = 70.0
	criticalCPU    = 90.0
	criticalMemory = 90.0
	criticalDisk   = 95.0

	warningTemp = 50.0
	warningCPU  = 50.0
	warningDisk = 80.0
)

// States is the full LED picture for one snapshot.
type States struct {
	Temp   TempState
	CPU    CPUState
	Disk   DiskState
	Health HealthState
}

// Evaluate derives all four LED states from snap. It has no state of its own.
func Evaluate(snap telemetry.Snapshot) States {
	return States{
		Temp:   EvaluateTemp(snap.TemperatureC),
		CPU:    EvaluateCPU(snap.CPULoadPct),
		Disk:   EvaluateDisk(snap.DiskUsagePct, snap.DiskActive),
		Health: EvaluateHealth(snap),
	}
}

func EvaluateTemp(c float64) TempState {
	switch {
	case c >= tempVeryHot:
		return VeryHot
	case c >= tempHot:
		return Hot
	case c >= tempWarm:
		return Warm
	default:
		return Cool
	}
}

func EvaluateCPU(pct float64) CPUState {
	switch {
	case pct >= cpuHeavy:
		return Heavy
	case pct >= cpuModerate:
		return Moderate
	case pct >= cpuLight:
		return Light
	default:
		return Low
	}
}

// EvaluateDisk reports Full above the usage limit regardless of activity.
func EvaluateDisk(usagePct float64, active bool) DiskState {
	switch {
	case usagePct >= diskFull:
		return Full
	case active:
		return Active
	default:
		return Idle
	}
}

// EvaluateHealth checks critical limits before warning limits.
func EvaluateHealth(snap telemetry.Snapshot) HealthState {
	if snap.TemperatureC > criticalTemp ||
		snap.CPULoadPct > criticalCPU ||
		snap.MemoryPct > criticalMemory ||
		snap.DiskUsagePct > criticalDisk {
		return Critical
	}

	if snap.TemperatureC >= warningTemp ||
		snap.CPULoadPct >= warningCPU ||
		snap.DiskUsagePct >= warningDisk {
		return Warning
	}

	return Normal
}

func (s TempState) String() string {
	switch s {
	case Cool:
		return "COOL"
	case Warm:
		return "WARM"
	case Hot:
		return "HOT"
	case VeryHot:
		return "VERY_HOT"
	default:
		return "UNKNOWN"
	}
}

func (s CPUState) String() string {
	switch s {
	case Low:
		return "LOW"
	case Light:
		return "LIGHT"
	case Moderate:
		return "MODERATE"
	case Heavy:
		return "HEAVY"
	default:
		return "UNKNOWN"
	}
}

func (s DiskState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Full:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

func (s HealthState) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}
