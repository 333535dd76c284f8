package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"codeberg.org/mutker/argus/internal/config"
	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/gpu"
	"codeberg.org/mutker/argus/internal/logger"
	"codeberg.org/mutker/argus/internal/metrics"
	"codeberg.org/mutker/argus/internal/pid"
	"codeberg.org/mutker/argus/internal/sampler"
	"codeberg.org/mutker/argus/internal/sensors"
	"codeberg.org/mutker/argus/internal/telemetry"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().
		Str("config_file", cfg.ConfigFile).
		Msg("Config loaded")

	source := newTemperatureSource(cfg)

	if cfg.ListSensors {
		report := buildSensorReport(context.Background(), cfg, source)
		pretty := term.IsTerminal(int(os.Stdout.Fd()))
		if err := writeSensorReport(os.Stdout, report, pretty); err != nil {
			logger.Fatal().Err(err).Msg("failed to write sensor report")
		}
		return
	}

	if err := run(cfg, source); err != nil {
		logger.Error().
			Err(err).
			Str("code", string(errors.CodeOf(err))).
			Msg("Agent failed")
		os.Exit(1)
	}

	logger.Info().Msg("Exiting...")
}

func newTemperatureSource(cfg *config.Config) *sensors.Source {
	sensorsCfg := sensors.DefaultConfig()
	sensorsCfg.SysfsPath = cfg.CPUTempSysfsPath
	sensorsCfg.PreferredChip = cfg.CPUTempPreferredChip
	sensorsCfg.PreferredLabel = cfg.CPUTempPreferredLabel
	sensorsCfg.MinScore = cfg.CPUTempMinScore
	sensorsCfg.CacheTTL = cfg.CacheTTL()

	return sensors.New(sensorsCfg, logger.Default().With("sensors"))
}

// agentStatus is served on /status.
type agentStatus struct {
	Sampler sampler.Status  `json:"sampler"`
	CPUTemp sensors.Status  `json:"cpu_temp"`
	Latest  *metrics.Sample `json:"latest"`
}

func run(cfg *config.Config, source *sensors.Source) error {
	if cfg.PIDFile != "" {
		if err := pid.Write(cfg.PIDFile); err != nil {
			return err
		}
		defer func() {
			if err := pid.Remove(cfg.PIDFile); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := metrics.NewRepository(metrics.DefaultConfig(cfg.DBPath), logger.Default().With("metrics"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close metrics store")
		}
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Listen = cfg.MetricsListen
	collector, err := telemetry.NewService(telemetryCfg)
	if err != nil {
		return err
	}
	defer collector.Close()

	gpuReader := gpu.NewReader(gpu.Config{
		Enabled: cfg.GPUEnabled,
		Index:   cfg.GPUIndex,
	}, logger.Default().With("gpu"))
	defer func() {
		if err := gpuReader.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release GPU backend")
		}
	}()

	s := sampler.New(sampler.Config{
		Interval:      cfg.Interval(),
		RetentionDays: cfg.RetentionDays,
	}, sampler.Deps{
		Host:        sampler.NewHostReader(ctx),
		Temperature: source,
		GPU:         gpuReader,
		Store:       store,
		Collector:   collector,
	}, logger.Default().With("sampler"))

	var wg sync.WaitGroup
	if cfg.MetricsListen != "" {
		status := func(ctx context.Context) any {
			latest, err := store.Latest(ctx)
			if err != nil {
				logger.Debug().Err(err).Msg("Failed to read latest sample")
			}
			return agentStatus{
				Sampler: s.Status(),
				CPUTemp: source.Status(ctx),
				Latest:  latest,
			}
		}

		log := logger.Default().With("telemetry")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := collector.Serve(ctx, collector.Router(status, log), log); err != nil {
				log.Error().Err(err).Msg("Diagnostics listener failed")
			}
		}()
	}

	go handleSignals(ctx, s.Stop)

	err = s.Run(ctx)

	cancel()
	wg.Wait()

	return err
}

// handleSignals stops the sampler on SIGINT or SIGTERM. The sampler
// finishes its current tick first.
func handleSignals(ctx context.Context, stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		stop()
	case <-ctx.Done():
	}
}
