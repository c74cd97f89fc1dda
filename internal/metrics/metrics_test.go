package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		DBPath:    filepath.Join(dir, "db", "metrics.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 1,
		Enabled:   true,
	}
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func sample(ts time.Time) *Sample {
	return &Sample{
		Timestamp: ts,
		Telemetry: TelemetryMetrics{
			TemperatureC: 48.5,
			CPULoadPct:   12,
			MemoryPct:    40,
			DiskUsagePct: 55,
			DiskActive:   true,
		},
		LEDs:       LEDMetrics{Temp: "WARM", CPU: "LOW", Disk: "ACTIVE", Health: "NORMAL"},
		FanOn:      false,
		DisplayOn:  true,
		MotionMode: "PIR",
	}
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc, err := NewService(DefaultConfig(), logger.Default())
	require.NoError(t, err)

	_, ok := svc.(*noopCollector)
	assert.True(t, ok)
	assert.NoError(t, svc.RecordSample(context.Background(), nil))
	assert.NoError(t, svc.Close())
}

func TestRecordSampleAndEvent(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewService(cfg, logger.Default())
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordSample(ctx, sample(now)))
	require.NoError(t, svc.RecordEvent(ctx, &Event{
		Timestamp: now,
		Kind:      EventMotion,
		Source:    "PIR",
		Duration:  12 * time.Second,
	}))
	require.NoError(t, svc.Close())

	assert.Equal(t, 1, countRows(t, cfg.DBPath, "samples"))
	assert.Equal(t, 1, countRows(t, cfg.DBPath, "events"))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var (
		ts         int64
		temp       float64
		led, mode  string
		durationMs int64
	)
	require.NoError(t, db.QueryRow(
		"SELECT timestamp, temperature_c, led_temp, motion_mode FROM samples").Scan(&ts, &temp, &led, &mode))
	assert.Equal(t, now.UnixMilli(), ts)
	assert.InDelta(t, 48.5, temp, 0.001)
	assert.Equal(t, "WARM", led)
	assert.Equal(t, "PIR", mode)

	require.NoError(t, db.QueryRow("SELECT duration_ms FROM events").Scan(&durationMs))
	assert.Equal(t, int64(12000), durationMs)
}

func TestBatchedRowsFlushedOnClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 10
	cfg.BatchTimeout = 60

	repo, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordSample(sample(now.Add(time.Duration(i)*time.Second))))
	}
	assert.Equal(t, 0, countRows(t, cfg.DBPath, "samples"), "rows stay buffered")

	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())
	assert.Equal(t, 3, countRows(t, cfg.DBPath, "samples"))
}

func TestInvalidEventRejected(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer svc.Close()

	err = svc.RecordEvent(context.Background(), &Event{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidMetrics))
}

func TestCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.RecordSample(ctx, sample(time.Now()))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
}

func TestSchemaMismatchCreatesBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))

	cfg = DefaultConfig()
	cfg.BatchSize = -1
	assert.Error(t, cfg.Validate())
}

func TestUnknownEventKindRejected(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer svc.Close()

	err = svc.RecordEvent(context.Background(), &Event{Timestamp: time.Now(), Kind: "bogus"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidMetrics))
}

func TestFailedBatchIsDropped(t *testing.T) {
	cfg := testConfig(t)
	repo, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)

	// violates the kind CHECK constraint
	err = repo.RecordEvent(&Event{Timestamp: time.Now(), Kind: "bogus"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordSample(sample(now.Add(time.Duration(i)*time.Second))))
	}

	r := repo.(*repository)
	r.mu.Lock()
	assert.Empty(t, r.samples)
	assert.Empty(t, r.events)
	r.mu.Unlock()

	require.NoError(t, repo.Close())
	assert.Equal(t, 5, countRows(t, cfg.DBPath, "samples"))
	assert.Equal(t, 0, countRows(t, cfg.DBPath, "events"))
}
