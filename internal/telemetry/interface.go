package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/argus/internal/metrics"
)

// Collector receives the agent's own measurements.
type Collector interface {
	// Record publishes the values of the most recent sample.
	Record(ctx context.Context, sample *metrics.Sample) error
	// ObserveTick records the outcome and duration of one sampler tick.
	ObserveTick(d time.Duration, err error)
	// ObservePruned adds rows removed by retention.
	ObservePruned(rows int64)
	// ObserveGPUFailures sets the GPU reader's consecutive failure count.
	ObserveGPUFailures(n int)
	Close() error
}

// StatusFunc returns a JSON-encodable diagnostics snapshot.
type StatusFunc func(ctx context.Context) any

type noop struct{}

// Nop returns a Collector that discards everything.
func Nop() Collector { return noop{} }

func (noop) Record(context.Context, *metrics.Sample) error { return nil }
func (noop) ObserveTick(time.Duration, error)              {}
func (noop) ObservePruned(int64)                           {}
func (noop) ObserveGPUFailures(int)                        {}
func (noop) Close() error                                  { return nil }
