package metrics

import "context"

// Resampling modes reported by HistoryResampled.
const (
	ModeRaw       = "raw"
	ModeAvgBucket = "avg_bucket"
)

// Store is the time-series table of host samples. Every call runs as its
// own short transaction, so the sampler's writes and concurrent readers
// never hold a lock across calls.
type Store interface {
	// Init idempotently creates the schema and its indexes.
	Init(ctx context.Context) error

	// Insert appends one row. Duplicate timestamps are kept.
	Insert(ctx context.Context, sample *Sample) error

	// Latest returns the row with the greatest timestamp, or nil when the
	// table is empty.
	Latest(ctx context.Context) (*Sample, error)

	// History returns rows with start <= ts <= end in ascending order,
	// cut off after limit rows. A long range may lose its tail; use
	// HistoryResampled for bounded output over the whole range.
	History(ctx context.Context, start, end int64, limit int) ([]Sample, error)

	// HistoryResampled returns at most maxPoints points covering the whole
	// range, averaging rows that fall into the same time bucket. Buckets
	// without rows are omitted rather than zero-filled, so a gap in the
	// result means "no data".
	HistoryResampled(ctx context.Context, start, end int64, maxPoints int) (*Resampled, error)

	// DeleteOlderThan removes rows with ts < threshold and returns how many
	// were removed.
	DeleteOlderThan(ctx context.Context, threshold int64) (int64, error)

	Close() error
}

// Sample is one host observation. Optional readings are nil when the
// source was unavailable at sampling time.
type Sample struct {
	TS            int64    `json:"ts"`
	CPUUsage      float64  `json:"cpu_usage"`
	CPUTempC      *float64 `json:"cpu_temp_c"`
	MemPercent    float64  `json:"mem_percent"`
	MemUsedBytes  int64    `json:"mem_used_bytes"`
	MemTotalBytes int64    `json:"mem_total_bytes"`
	GPUUsage      *float64 `json:"gpu_usage"`
	GPUTempC      *float64 `json:"gpu_temp_c"`
	GPUName       *string  `json:"gpu_name"`
}

// Resampled is the result of a bucketed history query.
type Resampled struct {
	Samples       []Sample `json:"samples"`
	BucketSeconds int64    `json:"bucket_seconds"`
	Mode          string   `json:"mode"`
}
