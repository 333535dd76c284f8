package metrics

import (
	"context"
	"database/sql"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
)

const (
	SchemaVersion = 1

	samplesTable = "metrics_samples"

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS metrics_samples (
	       id              INTEGER PRIMARY KEY AUTOINCREMENT,
	       ts              INTEGER NOT NULL,
	       cpu_usage       REAL NOT NULL,
	       cpu_temp_c      REAL,
	       mem_percent     REAL NOT NULL,
	       mem_used_bytes  INTEGER NOT NULL,
	       mem_total_bytes INTEGER NOT NULL,
	       gpu_usage       REAL,
	       gpu_temp_c      REAL,
	       gpu_name        TEXT
	   );
	   CREATE INDEX IF NOT EXISTS idx_metrics_samples_ts ON metrics_samples(ts);`

	insertSampleSQL = `
    INSERT INTO metrics_samples (
        ts, cpu_usage, cpu_temp_c,
        mem_percent, mem_used_bytes, mem_total_bytes,
        gpu_usage, gpu_temp_c, gpu_name
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sampleColumns = `
        ts, cpu_usage, cpu_temp_c,
        mem_percent, mem_used_bytes, mem_total_bytes,
        gpu_usage, gpu_temp_c, gpu_name`

	selectLatestSQL = `
    SELECT` + sampleColumns + `
    FROM metrics_samples
    ORDER BY ts DESC, id DESC
    LIMIT 1`

	selectRangeSQL = `
    SELECT` + sampleColumns + `
    FROM metrics_samples
    WHERE ts >= ? AND ts <= ?
    ORDER BY ts ASC, id ASC`

	selectRangeLimitSQL = selectRangeSQL + `
    LIMIT ?`

	deleteOlderThanSQL = `DELETE FROM metrics_samples WHERE ts < ?`
)

// InitSchema creates the schema and records the current version. All
// statements are idempotent, so running it against an existing database
// leaves its rows untouched.
func InitSchema(ctx context.Context, db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database schema...")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Debug().
		Int("version", SchemaVersion).
		Msg("Schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for a database
// that has never been versioned.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(ctx, db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, `
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
