package telemetry

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"golang.org/x/sys/unix"
)

type cpuSample struct {
	idle, total uint64
}

// Sampler reads system telemetry from procfs and sysfs. CPU load and disk
// activity are deltas against the previous call, so the first snapshot
// reports zero load and no activity.
type Sampler struct {
	cfg          Config
	now          func() time.Time
	prevCPU      cpuSample
	hasPrevCPU   bool
	prevIO       uint64
	hasPrevIO    bool
	lastActivity time.Time
}

func NewSampler(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sampler{cfg: cfg, now: time.Now}

	// prime the delta baselines
	if cpu, err := s.readCPU(); err == nil {
		s.prevCPU, s.hasPrevCPU = cpu, true
	}
	if io, err := s.readDiskIO(); err == nil {
		s.prevIO, s.hasPrevIO = io, true
	}

	return s, nil
}

// ReadMetrics returns a fresh snapshot. Temperature is required; the other
// readings degrade to zero with a debug log when their source is missing.
func (s *Sampler) ReadMetrics() (Snapshot, error) {
	errFactory := errors.New()
	now := s.now()

	temp, err := s.readTemperature()
	if err != nil {
		return Snapshot{}, errFactory.Wrap(ErrMetricsCollection, err)
	}

	snap := Snapshot{TemperatureC: temp, Timestamp: now}

	if load, err := s.cpuLoad(); err != nil {
		logger.Debug().Err(err).Msg("CPU load unavailable")
	} else {
		snap.CPULoadPct = load
	}

	if mem, err := s.readMemory(); err != nil {
		logger.Debug().Err(err).Msg("Memory usage unavailable")
	} else {
		snap.MemoryPct = mem
	}

	if disk, err := s.readDiskUsage(); err != nil {
		logger.Debug().Err(err).Msg("Disk usage unavailable")
	} else {
		snap.DiskUsagePct = disk
	}

	if active, err := s.diskActive(now); err != nil {
		logger.Debug().Err(err).Msg("Disk activity unavailable")
	} else {
		snap.DiskActive = active
	}

	return snap, nil
}

func (s *Sampler) readTemperature() (float64, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.cfg.ThermalZone)
	if err != nil {
		return 0, errFactory.Wrap(ErrTemperatureRead, err)
	}

	raw, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrTemperatureRead, err)
	}

	// millidegrees
	return raw / 1000.0, nil
}

func (s *Sampler) cpuLoad() (float64, error) {
	cur, err := s.readCPU()
	if err != nil {
		return 0, err
	}

	prev, had := s.prevCPU, s.hasPrevCPU
	s.prevCPU, s.hasPrevCPU = cur, true
	if !had || cur.total <= prev.total {
		return 0, nil
	}

	// iowait may go backwards between reads
	var deltaIdle float64
	if cur.idle > prev.idle {
		deltaIdle = float64(cur.idle - prev.idle)
	}
	deltaTotal := float64(cur.total - prev.total)

	return clampPercent((1.0 - deltaIdle/deltaTotal) * 100.0), nil
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func (s *Sampler) readCPU() (cpuSample, error) {
	errFactory := errors.New()

	file, err := os.Open(filepath.Join(s.cfg.ProcRoot, "stat"))
	if err != nil {
		return cpuSample{}, errFactory.Wrap(ErrCPURead, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return cpuSample{}, errFactory.WithData(ErrCPURead, "empty stat")
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, errFactory.WithData(ErrCPURead, "malformed stat")
	}

	var sample cpuSample
	for i, field := range fields[1:] {
		val, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return cpuSample{}, errFactory.Wrap(ErrCPURead, err)
		}
		sample.total += val
		// idle and iowait
		if i == 3 || i == 4 {
			sample.idle += val
		}
	}

	return sample, nil
}

func (s *Sampler) readMemory() (float64, error) {
	errFactory := errors.New()

	file, err := os.Open(filepath.Join(s.cfg.ProcRoot, "meminfo"))
	if err != nil {
		return 0, errFactory.Wrap(ErrMemoryRead, err)
	}
	defer file.Close()

	var total, available float64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		val, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		switch parts[0] {
		case "MemTotal:":
			total = val
		case "MemAvailable:":
			available = val
		}
	}

	if total <= 0 {
		return 0, errFactory.WithData(ErrMemoryRead, "MemTotal missing")
	}

	return (total - available) / total * 100.0, nil
}

func (s *Sampler) readDiskUsage() (float64, error) {
	errFactory := errors.New()

	var stat unix.Statfs_t
	if err := unix.Statfs(s.cfg.DiskPath, &stat); err != nil {
		return 0, errFactory.Wrap(ErrDiskUsageRead, err)
	}

	return diskUsagePercent(stat.Blocks, stat.Bfree, stat.Bavail), nil
}

// diskUsagePercent matches df: used / (used + available to unprivileged users).
func diskUsagePercent(blocks, free, avail uint64) float64 {
	if blocks == 0 || free > blocks {
		return 0
	}
	used := blocks - free
	if used+avail == 0 {
		return 0
	}

	return float64(used) / float64(used+avail) * 100.0
}

func (s *Sampler) diskActive(now time.Time) (bool, error) {
	cur, err := s.readDiskIO()
	if err != nil {
		return false, err
	}

	if s.hasPrevIO && cur != s.prevIO {
		s.lastActivity = now
	}
	s.prevIO, s.hasPrevIO = cur, true

	if s.lastActivity.IsZero() {
		return false, nil
	}

	return now.Sub(s.lastActivity) <= s.cfg.ActivityHold, nil
}

// readDiskIO sums sectors read and written across whole block devices.
func (s *Sampler) readDiskIO() (uint64, error) {
	errFactory := errors.New()

	file, err := os.Open(filepath.Join(s.cfg.ProcRoot, "diskstats"))
	if err != nil {
		return 0, errFactory.Wrap(ErrDiskActivityRead, err)
	}
	defer file.Close()

	var sectors uint64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 || !isWholeDisk(fields[2]) {
			continue
		}
		read, _ := strconv.ParseUint(fields[5], 10, 64)
		written, _ := strconv.ParseUint(fields[9], 10, 64)
		sectors += read + written
	}

	return sectors, nil
}

func isWholeDisk(name string) bool {
	switch {
	case strings.HasPrefix(name, "loop"), strings.HasPrefix(name, "ram"), strings.HasPrefix(name, "zram"):
		return false
	case strings.HasPrefix(name, "mmcblk"), strings.HasPrefix(name, "nvme"):
		return !strings.Contains(name, "p")
	case strings.HasPrefix(name, "sd"), strings.HasPrefix(name, "vd"):
		last := name[len(name)-1]
		return last < '0' || last > '9'
	default:
		return false
	}
}
