package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

// migrationStep describes where a history migration failed.
type migrationStep struct {
	Phase  string
	Target string
	Error  string
}

func stepError(code errors.ErrorCode, phase, target string, err error) error {
	return errors.New().WithData(code, migrationStep{Phase: phase, Target: target, Error: err.Error()})
}

// snapshotHistory copies the current history file into dir before an
// incompatible schema is discarded.
func snapshotHistory(db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", stepError(ErrSchemaInitFailed, "snapshot_dir", dir, err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("history_v%d_%s.db", version, stamp))

	// must run outside a transaction
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return "", stepError(ErrSchemaInitFailed, "snapshot", path, err)
	}

	log.Info().Str("path", path).Int("schema", version).Msg("Saved copy of old sample history")
	return path, nil
}

// ensureHistorySchema creates the samples/events tables on a fresh file. A
// file written by another schema version is snapshotted into backupDir and
// rebuilt empty; history is not carried across versions.
func ensureHistorySchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	switch version {
	case SchemaVersion:
		log.Debug().Int("schema", version).Msg("History schema up to date")
		return nil
	case 0:
		log.Debug().Msg("Creating history schema")
	default:
		log.Warn().Int("found", version).Int("want", SchemaVersion).Msg("History schema outdated, recreating")
		if _, err := snapshotHistory(db, backupDir, version, log); err != nil {
			return errors.New().Wrap(ErrSchemaMigrationFailed, err)
		}
	}

	if err := resetHistory(db, log); err != nil {
		return err
	}
	return InitSchema(db, log)
}

// resetHistory drops every history table in one transaction.
func resetHistory(db *sql.DB, log logger.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}
	done := false
	defer func() {
		if done {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Msg("Rollback of history reset failed")
		}
	}()

	for _, table := range tables {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return stepError(ErrSchemaMigrationFailed, "drop", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return stepError(ErrSchemaMigrationFailed, "commit", "", err)
	}
	done = true
	return nil
}
