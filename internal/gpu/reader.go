// Package gpu reads GPU utilization, temperature and name through NVML,
// falling back to nvidia-smi, and backs off while neither works.
package gpu

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/argus/internal/clock"
	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
)

const (
	backoffBase     = 1.5 // seconds
	backoffMax      = 60.0
	backoffMaxShift = 5
)

type Config struct {
	Enabled bool
	Index   int
}

// Reader selects a backend on first success and sticks with it until
// it fails. After both backends fail, reads return an empty Reading
// without probing until the backoff elapses.
type Reader struct {
	enabled   bool
	index     int
	primary   Backend
	secondary Backend
	clock     clock.Clock
	logger    logger.Logger

	// held for a whole Read so probes never overlap
	probeMu sync.Mutex

	mu          sync.RWMutex
	mode        Mode
	nextRetryAt time.Time
	failCount   int
	lastError   string
}

type Option func(*Reader)

func WithClock(c clock.Clock) Option {
	return func(r *Reader) { r.clock = c }
}

// WithBackends replaces the NVML and nvidia-smi backends. Either may be
// nil.
func WithBackends(primary, secondary Backend) Option {
	return func(r *Reader) {
		r.primary = primary
		r.secondary = secondary
	}
}

func NewReader(cfg Config, log logger.Logger, opts ...Option) *Reader {
	r := &Reader{
		enabled:   cfg.Enabled,
		index:     cfg.Index,
		primary:   newNVMLBackend(cfg.Index, &nvmlWrapper{}),
		secondary: newSMIBackend(cfg.Index),
		clock:     clock.Real(),
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Read returns the current GPU reading, or an empty Reading when the
// reader is disabled, backing off, or every eligible backend failed.
func (r *Reader) Read(ctx context.Context) Reading {
	if !r.enabled {
		return Reading{}
	}

	r.probeMu.Lock()
	defer r.probeMu.Unlock()

	now := r.clock.Now()

	r.mu.RLock()
	mode, nextRetryAt := r.mode, r.nextRetryAt
	r.mu.RUnlock()

	if now.Before(nextRetryAt) {
		return Reading{}
	}

	var lastErr error
	for _, b := range []Backend{r.primary, r.secondary} {
		if b == nil || (mode != ModeNone && mode != b.Mode()) {
			continue
		}

		reading, err := b.Probe(ctx)
		if err != nil {
			lastErr = err
			r.logger.Debug().
				Err(err).
				Str("backend", string(b.Mode())).
				Msg("GPU probe failed")
			continue
		}

		reading.Source = b.Mode()
		r.succeeded(b.Mode())
		return reading
	}

	if lastErr == nil {
		lastErr = errors.New().New(ErrNoBackend)
	}
	r.failed(now, lastErr)

	return Reading{}
}

func (r *Reader) succeeded(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != mode {
		r.logger.Debug().
			Str("backend", string(mode)).
			Int("gpu_index", r.index).
			Msg("GPU backend selected")
	}

	r.mode = mode
	r.failCount = 0
	r.nextRetryAt = time.Time{}
	r.lastError = ""
}

func (r *Reader) failed(now time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failCount++
	r.mode = ModeNone
	r.lastError = err.Error()
	r.nextRetryAt = now.Add(Backoff(r.failCount))

	r.logger.Debug().
		Int("fail_count", r.failCount).
		Time("next_retry_at", r.nextRetryAt).
		Str("last_error", r.lastError).
		Msg("GPU unavailable, backing off")
}

// Backoff is the wait after failCount consecutive failures:
// min(60, 1.5 * 2^min(failCount, 5)) seconds.
func Backoff(failCount int) time.Duration {
	shift := min(failCount, backoffMaxShift)
	seconds := math.Min(backoffMax, backoffBase*math.Pow(2, float64(shift)))
	return time.Duration(seconds * float64(time.Second))
}

func (r *Reader) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Status{
		Enabled:     r.enabled,
		Index:       r.index,
		Mode:        r.mode,
		NextRetryAt: r.nextRetryAt,
		FailCount:   r.failCount,
		LastError:   r.lastError,
	}
}

// Close releases backend resources. The Reader must not be used
// afterwards.
func (r *Reader) Close() error {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()

	var firstErr error
	for _, b := range []Backend{r.primary, r.secondary} {
		c, ok := b.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
