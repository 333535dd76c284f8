package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
	"github.com/klauspost/compress/zstd"
)

func backupDatabase(ctx context.Context, db *sql.DB, dir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	// Ensure backup directory exists
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	// Create backup filename with timestamp
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(dir,
		fmt.Sprintf("metrics_v%d_%s.db", version, timestamp))

	// VACUUM INTO requires no active transaction
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	compressed, err := compressFile(backupPath)
	if err != nil {
		// keep the uncompressed copy rather than lose the backup
		log.Warn().
			Err(err).
			Str("path", backupPath).
			Msg("Failed to compress database backup")
	} else {
		backupPath = compressed
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}

// compressFile writes path+".zst" and removes path on success.
func compressFile(path string) (string, error) {
	errFactory := errors.New()
	target := path + ".zst"

	src, err := os.Open(path)
	if err != nil {
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(target)
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	_, err = io.Copy(enc, src)
	if closeErr := enc.Close(); err == nil {
		err = closeErr
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	_ = src.Close()
	if err := os.Remove(path); err != nil {
		return "", errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	return target, nil
}

// ValidateAndUpdateSchema brings the database to SchemaVersion. An
// unversioned database gets the schema created in place. A database at
// a different version is backed up and recreated.
func ValidateAndUpdateSchema(ctx context.Context, db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(ctx, db)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get schema version")
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	switch version {
	case SchemaVersion:
		log.Debug().
			Int("version", version).
			Msg("Schema version is current")
		return nil
	case 0:
		return InitSchema(ctx, db, log)
	}

	backupPath, err := backupDatabase(ctx, db, cfg.backupDir(), version, log)
	if err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Error string
			Path  string
		}{
			Phase: "backup",
			Error: err.Error(),
			Path:  backupPath,
		})
	}

	if err := dropTables(ctx, db, log); err != nil {
		return err
	}
	return InitSchema(ctx, db, log)
}

func dropTables(ctx context.Context, db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback drop tables")
				}
			}
		}
	}()

	tables := []string{samplesTable, "schema_versions"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "commit_changes",
			Error: err.Error(),
		})
	}
	committed = true

	return nil
}
