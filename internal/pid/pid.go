// Package pid guards against two agents sharing one PID file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/argus/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Write writes the current process ID to path. If path already holds
// the PID of another live process, ErrAlreadyRunning is returned.
// Unreadable or stale content is overwritten.
func Write(path string) error {
	errFactory := errors.New()
	pid := os.Getpid()

	if existing, ok := readPID(path); ok && existing != pid && alive(existing) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{
			Path: path,
			PID:  existing,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), filePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file if it still belongs to this process.
func Remove(path string) error {
	errFactory := errors.New()

	existing, ok := readPID(path)
	if !ok || existing != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// alive probes pid with signal 0. EPERM means the process exists but
// belongs to another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
