package gpu

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/argus/internal/errors"
)

const (
	smiCommand        = "nvidia-smi"
	defaultSMITimeout = 2 * time.Second
	// bounds Wait after the context kills nvidia-smi while a leftover
	// child still holds its stdout
	smiWaitDelay = 500 * time.Millisecond
)

// commandRunner runs name with args and returns its standard output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = smiWaitDelay
	return cmd.Output()
}

// smiBackend shells out to nvidia-smi. The executable is looked up on
// PATH until found, then the path is reused.
type smiBackend struct {
	index    int
	timeout  time.Duration
	lookPath func(file string) (string, error)
	run      commandRunner

	mu   sync.Mutex
	path string
}

func newSMIBackend(index int) *smiBackend {
	return &smiBackend{
		index:    index,
		timeout:  defaultSMITimeout,
		lookPath: exec.LookPath,
		run:      execRunner,
	}
}

func (*smiBackend) Mode() Mode { return ModeSMI }

func (b *smiBackend) Probe(ctx context.Context) (Reading, error) {
	errFactory := errors.New()

	path, err := b.executable()
	if err != nil {
		return Reading{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.run(ctx, path,
		"--id="+strconv.Itoa(b.index),
		"--query-gpu=utilization.gpu,temperature.gpu,name",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reading{}, errFactory.WithData(ErrCommandTimeout, struct {
				Timeout string
			}{
				Timeout: b.timeout.String(),
			})
		}
		return Reading{}, errFactory.Wrap(ErrCommandFailed, err)
	}

	return parseSMIOutput(string(out))
}

func (b *smiBackend) executable() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path != "" {
		return b.path, nil
	}

	path, err := b.lookPath(smiCommand)
	if err != nil {
		return "", errors.New().Wrap(ErrCommandNotFound, err)
	}
	b.path = path

	return path, nil
}

// parseSMIOutput reads "usage, temp, name" from the first line. The
// name is everything after the second comma and may itself contain
// commas.
func parseSMIOutput(out string) (Reading, error) {
	errFactory := errors.New()

	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	parts := strings.SplitN(strings.TrimSpace(line), ",", 3)
	if len(parts) < 3 {
		return Reading{}, errFactory.WithData(ErrParseOutput, struct {
			Output string
		}{
			Output: line,
		})
	}

	usage, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Reading{}, errFactory.Wrap(ErrParseOutput, err)
	}

	temp, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Reading{}, errFactory.Wrap(ErrParseOutput, err)
	}

	r := Reading{Usage: &usage, TempC: &temp}
	if name := strings.TrimSpace(parts[2]); name != "" {
		r.Name = &name
	}

	return r, nil
}
