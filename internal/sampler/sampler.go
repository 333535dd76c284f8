// Package sampler runs the collection loop: one sample per interval,
// written to the metrics store, with periodic retention pruning.
package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/argus/internal/clock"
	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/gpu"
	"codeberg.org/mutker/argus/internal/logger"
	"codeberg.org/mutker/argus/internal/metrics"
	"codeberg.org/mutker/argus/internal/telemetry"
)

const (
	minWait          = 100 * time.Millisecond
	retentionEvery   = 60 * time.Second
	secondsPerDay    = 86400
	defaultInterval  = 2 * time.Second
	defaultRetention = 7
)

// State is the lifecycle of the sampling loop.
type State string

const (
	StateNotStarted State = "not-started"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
)

type Config struct {
	Interval time.Duration
	// RetentionDays <= 0 disables pruning.
	RetentionDays int
}

func DefaultConfig() Config {
	return Config{
		Interval:      defaultInterval,
		RetentionDays: defaultRetention,
	}
}

// TemperatureReader supplies the CPU temperature.
type TemperatureReader interface {
	ReadCPUTempC(ctx context.Context) (float64, bool)
}

// GPUReader supplies GPU readings and its diagnostic status.
type GPUReader interface {
	Read(ctx context.Context) gpu.Reading
	Status() gpu.Status
}

// SampleWriter is the write side of the metrics store.
type SampleWriter interface {
	Insert(ctx context.Context, sample *metrics.Sample) error
	DeleteOlderThan(ctx context.Context, threshold int64) (int64, error)
}

// Deps are the collaborators of a Sampler. Temperature, GPU and
// Collector are optional.
type Deps struct {
	Host        HostReader
	Temperature TemperatureReader
	GPU         GPUReader
	Store       SampleWriter
	Collector   telemetry.Collector
}

type Sampler struct {
	cfg    Config
	deps   Deps
	clock  clock.Clock
	logger logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	state State

	// loop-owned
	lastRetention time.Time
}

type Option func(*Sampler)

func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

func New(cfg Config, deps Deps, log logger.Logger, opts ...Option) *Sampler {
	if deps.Collector == nil {
		deps.Collector = telemetry.Nop()
	}

	s := &Sampler{
		cfg:    cfg,
		deps:   deps,
		clock:  clock.Real(),
		logger: log,
		stopCh: make(chan struct{}),
		state:  StateNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run samples until Stop is called or ctx is cancelled. A stop request
// is honoured at the next wait boundary, never in the middle of a tick.
// Run may only be called once.
func (s *Sampler) Run(ctx context.Context) error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			State State
		}{
			State: state,
		})
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("retention_days", s.cfg.RetentionDays).
		Msg("Sampler started")

	defer func() {
		s.setState(StateStopped)
		s.logger.Info().Msg("Sampler stopped")
	}()

	for {
		if s.stopping(ctx) {
			return nil
		}

		start := s.clock.Now()
		s.tick(ctx)
		wait := max(minWait, s.cfg.Interval-s.clock.Now().Sub(start))

		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// Stop asks the loop to exit. It is safe to call more than once and
// from any goroutine.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.state == StateRunning {
			s.state = StateStopping
		}
		s.mu.Unlock()
		close(s.stopCh)
	})
}

func (s *Sampler) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Sampler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Sampler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// tick collects and stores one sample, then applies retention. Every
// failure, including a panic in a collaborator, is logged and swallowed.
func (s *Sampler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New().WithMessage(errors.ErrInternal, fmt.Sprintf("panic during tick: %v", r))
			s.logger.Error().
				Err(err).
				Str("code", string(errors.CodeOf(err))).
				Msg("Sampling tick panicked")
		}
	}()

	start := s.clock.Now()

	err := s.collectAndStore(ctx)

	s.deps.Collector.ObserveTick(s.clock.Now().Sub(start), err)
	if s.deps.GPU != nil {
		s.deps.Collector.ObserveGPUFailures(s.deps.GPU.Status().FailCount)
	}

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("code", string(errors.CodeOf(err))).
			Msg("Sampling tick failed")
		return
	}

	s.applyRetention(ctx)
}

// collectAndStore turns a collaborator panic into ErrInternal so the
// tick is still counted as failed.
func (s *Sampler) collectAndStore(ctx context.Context) (err error) {
	errFactory := errors.New()

	defer func() {
		if r := recover(); r != nil {
			err = errFactory.WithMessage(errors.ErrInternal, fmt.Sprintf("panic during tick: %v", r))
		}
	}()

	sample, err := s.Collect(ctx)
	if err != nil {
		return err
	}

	if err := s.deps.Store.Insert(ctx, sample); err != nil {
		return errFactory.Wrap(errors.ErrStoreSample, err)
	}

	if err := s.deps.Collector.Record(ctx, sample); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to publish sample metrics")
	}

	return nil
}

// Collect assembles one sample stamped with the current second.
func (s *Sampler) Collect(ctx context.Context) (*metrics.Sample, error) {
	errFactory := errors.New()

	ts := s.clock.Now().Unix()

	cpuUsage, err := s.deps.Host.CPUPercent(ctx)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrCollectSample, err)
	}

	mem, err := s.deps.Host.Memory(ctx)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrCollectSample, err)
	}

	sample := &metrics.Sample{
		TS:            ts,
		CPUUsage:      cpuUsage,
		MemPercent:    mem.Percent,
		MemUsedBytes:  int64(mem.Used),
		MemTotalBytes: int64(mem.Total),
	}

	if s.deps.Temperature != nil {
		if temp, ok := s.deps.Temperature.ReadCPUTempC(ctx); ok {
			sample.CPUTempC = &temp
		}
	}

	if s.deps.GPU != nil {
		reading := s.deps.GPU.Read(ctx)
		sample.GPUUsage = reading.Usage
		sample.GPUTempC = reading.TempC
		sample.GPUName = reading.Name
	}

	return sample, nil
}

// applyRetention prunes at most once per retentionEvery. The attempt
// time is recorded before deleting, so a failing delete is not retried
// on every tick.
func (s *Sampler) applyRetention(ctx context.Context) {
	if s.cfg.RetentionDays <= 0 {
		return
	}

	now := s.clock.Now()
	if !s.lastRetention.IsZero() && now.Sub(s.lastRetention) < retentionEvery {
		return
	}
	s.lastRetention = now

	threshold := now.Unix() - int64(s.cfg.RetentionDays)*secondsPerDay
	deleted, err := s.deps.Store.DeleteOlderThan(ctx, threshold)
	if err != nil {
		err = errors.New().Wrap(errors.ErrRetention, err)
		s.logger.Warn().
			Err(err).
			Int64("threshold", threshold).
			Msg("Retention cleanup failed")
		return
	}

	s.deps.Collector.ObservePruned(deleted)
	if deleted > 0 {
		s.logger.Info().
			Int64("deleted", deleted).
			Int64("threshold", threshold).
			Msg("Retention cleanup deleted rows")
	}
}

// Status is a diagnostic snapshot of the sampler.
type Status struct {
	SamplingIntervalSeconds float64     `json:"sampling_interval_seconds"`
	RetentionDays           int         `json:"retention_days"`
	State                   State       `json:"state"`
	GPU                     *gpu.Status `json:"gpu,omitempty"`
}

func (s *Sampler) Status() Status {
	st := Status{
		SamplingIntervalSeconds: s.cfg.Interval.Seconds(),
		RetentionDays:           s.cfg.RetentionDays,
		State:                   s.State(),
	}
	if s.deps.GPU != nil {
		g := s.deps.GPU.Status()
		st.GPU = &g
	}

	return st
}
