package gpu

import (
	"context"
	"time"
)

// Mode identifies the backend a Reader has locked onto.
type Mode string

const (
	ModeNone Mode = ""
	ModeNVML Mode = "nvml"
	ModeSMI  Mode = "nvidia-smi"
)

// Backend is one way of querying the GPU. Probe either returns a
// complete reading or an error; it never returns a partial reading.
type Backend interface {
	Mode() Mode
	Probe(ctx context.Context) (Reading, error)
}

// Reading is a single GPU observation. Every field is nil when the GPU
// could not be read.
type Reading struct {
	Usage  *float64 `json:"usage"`
	TempC  *float64 `json:"temp_c"`
	Name   *string  `json:"name"`
	Source Mode     `json:"source,omitempty"`
}

// Empty reports whether the reading carries no data.
func (r Reading) Empty() bool {
	return r.Usage == nil && r.TempC == nil && r.Name == nil
}

// Status is a diagnostic snapshot of a Reader.
type Status struct {
	Enabled     bool      `json:"enabled"`
	Index       int       `json:"gpu_index"`
	Mode        Mode      `json:"mode"`
	NextRetryAt time.Time `json:"next_retry_at"`
	FailCount   int       `json:"fail_count"`
	LastError   string    `json:"last_error,omitempty"`
}
