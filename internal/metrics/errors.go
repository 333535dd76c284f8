package metrics

import "codeberg.org/mutker/argus/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")
	ErrInvalidRange  = errors.ErrorCode("metrics_invalid_range")

	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// schema_versions handling
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")

	// sample table statements
	ErrInsertFailed = errors.ErrorCode("metrics_insert_failed")
	ErrQueryFailed  = errors.ErrorCode("metrics_query_failed")
	ErrDeleteFailed = errors.ErrorCode("metrics_delete_failed")
)
