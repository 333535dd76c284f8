package config

import (
	"strings"
	"time"

	"codeberg.org/mutker/argus/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "ARGUS"
	configName      = "argus"
	systemConfDir   = "/etc/argus"
	DefaultDBPath   = "./argus.db"
	DefaultMinScore = 80
)

type Config struct {
	DBPath           string `mapstructure:"db_path"`
	SamplingInterval int    `mapstructure:"sampling_interval"`
	RetentionDays    int    `mapstructure:"retention_days"`

	CPUTempSysfsPath      string `mapstructure:"cpu_temp_sysfs_path"`
	CPUTempPreferredChip  string `mapstructure:"cpu_temp_preferred_chip"`
	CPUTempPreferredLabel string `mapstructure:"cpu_temp_preferred_label"`
	CPUTempMinScore       int    `mapstructure:"cpu_temp_min_score"`
	CPUTempCacheTTL       int    `mapstructure:"cpu_temp_cache_ttl"`

	GPUEnabled bool `mapstructure:"gpu_enabled"`
	GPUIndex   int  `mapstructure:"gpu_index"`

	MetricsListen string `mapstructure:"metrics_listen"`
	PIDFile       string `mapstructure:"pid_file"`

	Debug       bool `mapstructure:"debug"`
	Verbose     bool `mapstructure:"verbose"`
	ListSensors bool `mapstructure:"list_sensors"`

	// ConfigFile is the file that was actually read, empty if none.
	ConfigFile string `mapstructure:"-"`
}

var defaults = map[string]any{
	"db_path":                  DefaultDBPath,
	"sampling_interval":        2,
	"retention_days":           7,
	"cpu_temp_sysfs_path":      "",
	"cpu_temp_preferred_chip":  "",
	"cpu_temp_preferred_label": "",
	"cpu_temp_min_score":       DefaultMinScore,
	"cpu_temp_cache_ttl":       300,
	"gpu_enabled":              true,
	"gpu_index":                0,
	"metrics_listen":           "",
	"pid_file":                 "",
	"debug":                    false,
	"verbose":                  false,
	"list_sensors":             false,
}

// Load builds the configuration from defaults, an optional config file,
// ARGUS_* environment variables and command line flags, in increasing
// order of precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Define flags
	fs := pflag.NewFlagSet("argus", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to the configuration file")
	fs.String("db-path", DefaultDBPath, "Path to the metrics database")
	fs.Int("sampling-interval", 2, "Seconds between samples")
	fs.Int("retention-days", 7, "Days of history to keep (0 disables pruning)")
	fs.String("cpu-temp-sysfs-path", "", "Read CPU temperature from this sysfs file only")
	fs.String("cpu-temp-preferred-chip", "", "Prefer sensors whose chip name contains this")
	fs.String("cpu-temp-preferred-label", "", "Prefer sensors whose label contains this")
	fs.Int("cpu-temp-min-score", DefaultMinScore, "Minimum score for an automatically selected sensor")
	fs.Int("cpu-temp-cache-ttl", 300, "Seconds to keep the selected sensor before rescanning")
	fs.Bool("gpu-enabled", true, "Collect GPU utilization and temperature")
	fs.Int("gpu-index", 0, "GPU index to query")
	fs.String("metrics-listen", "", "Address for the Prometheus /metrics endpoint (empty disables)")
	fs.String("pid-file", "", "Write a PID file and refuse to start if another agent holds it")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("list-sensors", false, "Print temperature sensor diagnostics and exit")

	// Parse flags
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Load configuration from file
	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(systemConfDir)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Override config file and environment values with explicitly set flags
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the agent cannot run with. Sensor settings are
// not validated here: a bad override path degrades to "no reading".
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SamplingInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.SamplingInterval)
	}
	if c.RetentionDays < 0 {
		return errFactory.WithData(errors.ErrInvalidRetention, c.RetentionDays)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "db_path is empty")
	}
	if c.GPUIndex < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "gpu_index is negative")
	}

	return nil
}

// Interval returns the sampling interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SamplingInterval) * time.Second
}

// CacheTTL returns the CPU temperature source cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CPUTempCacheTTL) * time.Second
}
