package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	samples       []*Sample
	events        []*Event
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ensureHistorySchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		samples:       make([]*Sample, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Start background goroutine for periodic flushing if batching is enabled
	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) RecordSample(sample *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, sample)

	return r.flushIfFull()
}

func (r *repository) RecordEvent(event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return r.flushIfFull()
}

func (r *repository) flushIfFull() error {
	if len(r.samples)+len(r.events) >= max(r.cfg.BatchSize, 1) {
		return r.flush()
	}
	return nil
}

func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() { err = r.close() })
	return err
}

func (r *repository) close() error {
	// Signal the flusher goroutine to stop
	close(r.shutdownChan)

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	// Unbatched or flusher-less repositories still hold pending rows
	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()
	if flushErr != nil {
		r.logger.Error().Err(flushErr).Msg("Failed to flush pending metrics")
	}

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.db.Close()
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Metrics repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
			return
		}
	}
}

func (r *repository) flush() error {
	if len(r.samples) == 0 && len(r.events) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.dropBatch(err)
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		r.dropBatch(err)
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if len(r.samples) > 0 {
		stmt, err := tx.Prepare(GetInsertSampleSQL())
		if err != nil {
			return rollback(err)
		}
		defer stmt.Close()

		for _, s := range r.samples {
			if _, err := stmt.Exec(
				s.Timestamp.UnixMilli(),
				s.Telemetry.TemperatureC,
				s.Telemetry.CPULoadPct,
				s.Telemetry.MemoryPct,
				s.Telemetry.DiskUsagePct,
				boolToInt(s.Telemetry.DiskActive),
				s.LEDs.Temp,
				s.LEDs.CPU,
				s.LEDs.Disk,
				s.LEDs.Health,
				boolToInt(s.FanOn),
				boolToInt(s.DisplayOn),
				s.MotionMode,
			); err != nil {
				return rollback(err)
			}
		}
	}

	if len(r.events) > 0 {
		stmt, err := tx.Prepare(GetInsertEventSQL())
		if err != nil {
			return rollback(err)
		}
		defer stmt.Close()

		for _, e := range r.events {
			if _, err := stmt.Exec(
				e.Timestamp.UnixMilli(),
				e.Kind,
				e.Source,
				e.Duration.Milliseconds(),
			); err != nil {
				return rollback(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		r.dropBatch(err)
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().
		Int("samples", len(r.samples)).
		Int("events", len(r.events)).
		Msg("Flushed metrics to database")
	r.samples = r.samples[:0]
	r.events = r.events[:0]

	return nil
}

// dropBatch discards the pending rows after a failed write.
func (r *repository) dropBatch(err error) {
	r.logger.Error().
		Err(err).
		Int("samples", len(r.samples)).
		Int("events", len(r.events)).
		Msg("Failed to write metrics, dropping batch")
	r.samples = r.samples[:0]
	r.events = r.events[:0]
}
