// Package sensors picks the most plausible CPU temperature input on the
// host and reads it.
//
// Selection runs as a cascade: an operator override path, the cached
// hwmon input, a scored scan of the hwmon bus, the OS sensor API and
// finally thermal zones. Only the hwmon pick is cached.
package sensors

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/argus/internal/clock"
	"codeberg.org/mutker/argus/internal/logger"
	"github.com/shirou/gopsutil/v3/host"
)

// Method names the step of the cascade that produced a reading.
type Method string

const (
	MethodNone        Method = "none"
	MethodSysfs       Method = "sysfs"
	MethodHwmon       Method = "hwmon"
	MethodOSSensors   Method = "os-sensors"
	MethodThermalZone Method = "thermal-zone"
)

const (
	DefaultHwmonRoot   = "/sys/class/hwmon"
	DefaultThermalRoot = "/sys/class/thermal"
	DefaultMinScore    = 80
	DefaultCacheTTL    = 300 * time.Second
)

type Config struct {
	// SysfsPath, when set, is read directly and nothing else is tried.
	SysfsPath      string
	PreferredChip  string
	PreferredLabel string
	MinScore       int
	CacheTTL       time.Duration
	HwmonRoot      string
	ThermalRoot    string
}

func DefaultConfig() Config {
	return Config{
		MinScore:    DefaultMinScore,
		CacheTTL:    DefaultCacheTTL,
		HwmonRoot:   DefaultHwmonRoot,
		ThermalRoot: DefaultThermalRoot,
	}
}

// Source is safe for concurrent use. Reads are serialized.
type Source struct {
	cfg       Config
	pref      Preference
	logger    logger.Logger
	clock     clock.Clock
	osSensors OSSensorsFunc

	mu    sync.Mutex
	cache cacheEntry
}

type cacheEntry struct {
	path      string
	expiresAt time.Time
	source    Candidate
}

type Option func(*Source)

func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithOSSensors replaces the OS sensor query. nil disables that step.
func WithOSSensors(fn OSSensorsFunc) Option {
	return func(s *Source) { s.osSensors = fn }
}

func New(cfg Config, log logger.Logger, opts ...Option) *Source {
	if cfg.HwmonRoot == "" {
		cfg.HwmonRoot = DefaultHwmonRoot
	}
	if cfg.ThermalRoot == "" {
		cfg.ThermalRoot = DefaultThermalRoot
	}
	cfg.SysfsPath = strings.TrimSpace(cfg.SysfsPath)

	s := &Source{
		cfg: cfg,
		pref: Preference{
			Chip:  cfg.PreferredChip,
			Label: cfg.PreferredLabel,
		},
		logger:    log,
		clock:     clock.Real(),
		osSensors: host.SensorsTemperaturesWithContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CacheStatus describes the cached hwmon input.
type CacheStatus struct {
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status is a diagnostic snapshot of how the temperature is obtained.
type Status struct {
	TempC     *float64     `json:"temp_c"`
	Method    Method       `json:"method"`
	Source    *Candidate   `json:"source,omitempty"`
	Cache     *CacheStatus `json:"cache,omitempty"`
	MinScore  int          `json:"min_score"`
	SysfsPath string       `json:"sysfs_path,omitempty"`
}

// ReadCPUTempC returns the best available CPU temperature. The second
// result is false when no plausible source exists.
func (s *Source) ReadCPUTempC(ctx context.Context) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.resolve(ctx, true)
	if st.TempC == nil {
		return 0, false
	}

	return *st.TempC, true
}

// Status runs the cascade without modifying the cache.
func (s *Source) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resolve(ctx, false)
}

// ListCandidates returns every hwmon temperature input, best first.
func (s *Source) ListCandidates() []Candidate {
	c := hwmonCandidates(s.cfg.HwmonRoot, s.pref)
	sortCandidates(c)
	if c == nil {
		return []Candidate{}
	}
	return c
}

// Recommended returns the hwmon input the cascade would pick, if any.
func (s *Source) Recommended() (Candidate, bool) {
	return pickBest(hwmonCandidates(s.cfg.HwmonRoot, s.pref), s.cfg.MinScore)
}

func (s *Source) resolve(ctx context.Context, commit bool) Status {
	st := Status{Method: MethodNone, MinScore: s.cfg.MinScore}

	if s.cfg.SysfsPath != "" {
		st.SysfsPath = s.cfg.SysfsPath
		st.Method = MethodSysfs
		temp, err := readTempFile(s.cfg.SysfsPath)
		if err != nil {
			s.logger.Debug().
				Err(err).
				Str("path", s.cfg.SysfsPath).
				Msg("Configured temperature path unreadable")
			return st
		}
		st.TempC = &temp
		return st
	}

	now := s.clock.Now()
	previous := s.cache.path

	if s.cache.path != "" {
		if now.Before(s.cache.expiresAt) {
			temp, err := readTempFile(s.cache.path)
			if err == nil {
				source := s.cache.source
				st.TempC = &temp
				st.Method = MethodHwmon
				st.Source = &source
				st.Cache = &CacheStatus{Path: s.cache.path, ExpiresAt: s.cache.expiresAt}
				return st
			}
			s.logger.Debug().
				Err(err).
				Str("path", s.cache.path).
				Msg("Cached temperature input failed, rescanning")
		}
		if commit {
			s.cache = cacheEntry{}
		}
	}

	if best, ok := pickBest(hwmonCandidates(s.cfg.HwmonRoot, s.pref), s.cfg.MinScore); ok {
		expiresAt := now.Add(s.cfg.CacheTTL)
		if commit {
			if best.InputPath != previous {
				s.logger.Debug().
					Str("chip", best.Chip).
					Str("label", best.Label).
					Str("path", best.InputPath).
					Int("score", best.Score).
					Msg("Selected CPU temperature input")
			}
			s.cache = cacheEntry{path: best.InputPath, expiresAt: expiresAt, source: best}
		}
		st.TempC = &best.TempC
		st.Method = MethodHwmon
		st.Source = &best
		st.Cache = &CacheStatus{Path: best.InputPath, ExpiresAt: expiresAt}
		return st
	}

	candidates, err := osSensorCandidates(ctx, s.osSensors, s.pref)
	if err != nil {
		s.logger.Debug().Err(err).Msg("OS sensor query failed")
	}
	if best, ok := pickBest(candidates, s.cfg.MinScore); ok {
		st.TempC = &best.TempC
		st.Method = MethodOSSensors
		st.Source = &best
		return st
	}

	if best, ok := pickBest(thermalZoneCandidates(s.cfg.ThermalRoot, s.pref), s.cfg.MinScore); ok {
		st.TempC = &best.TempC
		st.Method = MethodThermalZone
		st.Source = &best
		return st
	}

	return st
}
