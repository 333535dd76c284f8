package metrics

import (
	"path/filepath"

	"codeberg.org/mutker/argus/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm     = 0o755
	defaultFilePerm    = 0o644
	defaultBusyTimeout = 5000 // milliseconds
	backupDirName      = "backups"
)

type Config struct {
	DBPath string
	// BusyTimeout is how long a statement waits on a locked database, in
	// milliseconds.
	BusyTimeout int
}

func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:      dbPath,
		BusyTimeout: defaultBusyTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BusyTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "busy timeout is negative")
	}
	return nil
}

func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
