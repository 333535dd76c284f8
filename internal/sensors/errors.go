package sensors

import "codeberg.org/mutker/argus/internal/errors"

const (
	ErrReadSensor       = errors.ErrorCode("sensors_read_failed")
	ErrImplausibleValue = errors.ErrorCode("sensors_implausible_value")
	ErrOSSensorsFailed  = errors.ErrorCode("sensors_os_query_failed")
)
