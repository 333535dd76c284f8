package gpu

import (
	"codeberg.org/mutker/argus/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Initialization and Lifecycle Errors
	ErrNotInitialized  = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed      = errors.ErrorCode("gpu_init_failed")
	ErrDeviceNotFound  = errors.ErrorCode("gpu_device_not_found")
	ErrShutdownFailed  = errors.ErrorCode("gpu_shutdown_failed")
	ErrBackendDisabled = errors.ErrorCode("gpu_backend_disabled")
	ErrNoBackend       = errors.ErrorCode("gpu_no_backend")

	// Query Errors
	ErrDeviceInfoFailed      = errors.ErrorCode("gpu_device_info_failed")
	ErrTemperatureReadFailed = errors.ErrorCode("gpu_temperature_read_failed")
	ErrUtilizationReadFailed = errors.ErrorCode("gpu_utilization_read_failed")

	// Command Errors
	ErrCommandNotFound = errors.ErrorCode("gpu_command_not_found")
	ErrCommandFailed   = errors.ErrorCode("gpu_command_failed")
	ErrCommandTimeout  = errors.ErrorCode("gpu_command_timeout")
	ErrParseOutput     = errors.ErrorCode("gpu_parse_output_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// isNVMLSuccess checks if a Return value indicates success
func isNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
