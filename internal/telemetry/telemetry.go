// Package telemetry exposes the agent's own Prometheus metrics and a
// small diagnostics listener.
package telemetry

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

type Service struct {
	cfg      Config
	registry *prometheus.Registry

	sampleTime  prometheus.Gauge
	cpuUsage    prometheus.Gauge
	cpuTemp     prometheus.Gauge
	memPercent  prometheus.Gauge
	memUsed     prometheus.Gauge
	memTotal    prometheus.Gauge
	gpuUsage    prometheus.Gauge
	gpuTemp     prometheus.Gauge
	gpuFailures prometheus.Gauge
	ticks       *prometheus.CounterVec
	tickTime    prometheus.Histogram
	pruned      prometheus.Counter
}

func NewService(cfg Config) (*Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	ns := cfg.Namespace
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	s := &Service{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),

		sampleTime:  gauge("sample", "timestamp_seconds", "Unix time of the last stored sample."),
		cpuUsage:    gauge("sample", "cpu_usage_percent", "CPU utilization of the last sample."),
		cpuTemp:     gauge("sample", "cpu_temp_celsius", "CPU temperature of the last sample, NaN when unavailable."),
		memPercent:  gauge("sample", "memory_used_percent", "Memory utilization of the last sample."),
		memUsed:     gauge("sample", "memory_used_bytes", "Memory in use at the last sample."),
		memTotal:    gauge("sample", "memory_total_bytes", "Total memory at the last sample."),
		gpuUsage:    gauge("sample", "gpu_usage_percent", "GPU utilization of the last sample, NaN when unavailable."),
		gpuTemp:     gauge("sample", "gpu_temp_celsius", "GPU temperature of the last sample, NaN when unavailable."),
		gpuFailures: gauge("gpu", "consecutive_failures", "Consecutive failed GPU probes."),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "sampler",
				Name:      "ticks_total",
				Help:      "Sampler ticks by result.",
			},
			[]string{"result"},
		),
		tickTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "sampler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent collecting and storing one sample.",
			Buckets:   prometheus.DefBuckets,
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "retention",
			Name:      "deleted_rows_total",
			Help:      "Rows removed by retention pruning.",
		}),
	}

	toRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.sampleTime, s.cpuUsage, s.cpuTemp,
		s.memPercent, s.memUsed, s.memTotal,
		s.gpuUsage, s.gpuTemp, s.gpuFailures,
		s.ticks, s.tickTime, s.pruned,
	}
	for _, c := range toRegister {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	// both results are exported from the start
	s.ticks.WithLabelValues(resultOK)
	s.ticks.WithLabelValues(resultError)

	return s, nil
}

// Registry returns the registry holding the agent's metrics.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Service) Record(ctx context.Context, sample *metrics.Sample) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	s.sampleTime.Set(float64(sample.TS))
	s.cpuUsage.Set(sample.CPUUsage)
	s.cpuTemp.Set(orNaN(sample.CPUTempC))
	s.memPercent.Set(sample.MemPercent)
	s.memUsed.Set(float64(sample.MemUsedBytes))
	s.memTotal.Set(float64(sample.MemTotalBytes))
	s.gpuUsage.Set(orNaN(sample.GPUUsage))
	s.gpuTemp.Set(orNaN(sample.GPUTempC))

	return nil
}

func (s *Service) ObserveTick(d time.Duration, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	s.ticks.WithLabelValues(result).Inc()
	s.tickTime.Observe(d.Seconds())
}

func (s *Service) ObservePruned(rows int64) {
	if rows > 0 {
		s.pruned.Add(float64(rows))
	}
}

func (s *Service) ObserveGPUFailures(n int) {
	s.gpuFailures.Set(float64(n))
}

// Close is a no-op. The registry is released with the Service.
func (*Service) Close() error {
	return nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
