package telemetry

import "codeberg.org/mutker/argus/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrorCode("telemetry_invalid_config")
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")

	// Record rejects nil samples and cancelled contexts
	ErrInvalidMetrics   = errors.ErrorCode("telemetry_invalid_sample")
	ErrOperationTimeout = errors.ErrorCode("telemetry_operation_timeout")

	// diagnostics listener
	ErrServeFailed     = errors.ErrorCode("telemetry_listener_failed")
	ErrServiceShutdown = errors.ErrorCode("telemetry_listener_shutdown_failed")
)
