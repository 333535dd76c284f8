package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

type rowScanner interface {
	Scan(dest ...any) error
}

// NewRepository opens the SQLite database at cfg.DBPath. The schema is
// not touched until Init is called.
func NewRepository(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
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

	// WAL lets readers proceed while the sampler writes; the busy timeout
	// covers the short window where two writers meet.
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=%d", cfg.DBPath, cfg.BusyTimeout)
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

	log.Debug().
		Str("path", cfg.DBPath).
		Int("busy_timeout_ms", cfg.BusyTimeout).
		Msg("Metrics repository opened")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) Init(ctx context.Context) error {
	errFactory := errors.New()

	if err := ValidateAndUpdateSchema(ctx, r.db, r.cfg, r.logger); err != nil {
		return errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	r.logger.Info().
		Str("path", r.cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Metrics repository initialized")

	return nil
}

func (r *repository) Insert(ctx context.Context, sample *Sample) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.WithData(ErrInsertFailed, "nil sample")
	}

	_, err := r.db.ExecContext(ctx, insertSampleSQL,
		sample.TS,
		sample.CPUUsage,
		nullFloat(sample.CPUTempC),
		sample.MemPercent,
		sample.MemUsedBytes,
		sample.MemTotalBytes,
		nullFloat(sample.GPUUsage),
		nullFloat(sample.GPUTempC),
		nullString(sample.GPUName),
	)
	if err != nil {
		return errFactory.Wrap(ErrInsertFailed, err)
	}

	return nil
}

func (r *repository) Latest(ctx context.Context) (*Sample, error) {
	errFactory := errors.New()

	sample, err := scanSample(r.db.QueryRowContext(ctx, selectLatestSQL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return &sample, nil
}

func (r *repository) History(ctx context.Context, start, end int64, limit int) ([]Sample, error) {
	errFactory := errors.New()

	if limit <= 0 {
		return nil, errFactory.WithData(ErrInvalidRange, struct {
			Limit int
		}{
			Limit: limit,
		})
	}

	rows, err := r.db.QueryContext(ctx, selectRangeLimitSQL, start, end, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, min(limit, 1024))
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return samples, nil
}

func (r *repository) HistoryResampled(ctx context.Context, start, end int64, maxPoints int) (*Resampled, error) {
	errFactory := errors.New()

	width, bucketSeconds, mode := bucketWidth(start, end, maxPoints)

	rows, err := r.db.QueryContext(ctx, selectRangeSQL, start, end)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	agg := newResampler(start, width)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		agg.add(&sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return &Resampled{
		Samples:       agg.finish(),
		BucketSeconds: bucketSeconds,
		Mode:          mode,
	}, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, threshold int64) (int64, error) {
	errFactory := errors.New()

	result, err := r.db.ExecContext(ctx, deleteOlderThanSQL, threshold)
	if err != nil {
		return 0, errFactory.Wrap(ErrDeleteFailed, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrDeleteFailed, err)
	}

	return deleted, nil
}

func (r *repository) Close() error {
	errFactory := errors.New()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Metrics repository closed")

	return nil
}

func scanSample(row rowScanner) (Sample, error) {
	var (
		s        Sample
		cpuTemp  sql.NullFloat64
		gpuUsage sql.NullFloat64
		gpuTemp  sql.NullFloat64
		gpuName  sql.NullString
	)

	if err := row.Scan(
		&s.TS, &s.CPUUsage, &cpuTemp,
		&s.MemPercent, &s.MemUsedBytes, &s.MemTotalBytes,
		&gpuUsage, &gpuTemp, &gpuName,
	); err != nil {
		return Sample{}, err
	}

	s.CPUTempC = floatPtr(cpuTemp)
	s.GPUUsage = floatPtr(gpuUsage)
	s.GPUTempC = floatPtr(gpuTemp)
	if gpuName.Valid {
		name := gpuName.String
		s.GPUName = &name
	}

	return s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
