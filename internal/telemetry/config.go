package telemetry

import (
	"time"

	"codeberg.org/mutker/argus/internal/errors"
)

const (
	defaultNamespace       = "argus"
	defaultShutdownTimeout = 5 * time.Second
	defaultReadTimeout     = 10 * time.Second
)

type Config struct {
	Namespace string
	// Listen is the address of the diagnostics listener. Empty disables
	// the listener but metrics are still collected.
	Listen          string
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Namespace:       defaultNamespace,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Namespace == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "namespace is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "shutdown timeout must be positive")
	}
	return nil
}
