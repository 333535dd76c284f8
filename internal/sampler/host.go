package sampler

import (
	"context"

	"codeberg.org/mutker/argus/internal/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostReader reads host-wide CPU and memory counters.
type HostReader interface {
	// CPUPercent returns utilization since the previous call.
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryStat, error)
}

type MemoryStat struct {
	Percent float64
	Used    uint64
	Total   uint64
}

type psutilHost struct{}

// NewHostReader returns a gopsutil-backed HostReader. The CPU counter
// is primed here so the first tick reports a real delta.
func NewHostReader(ctx context.Context) HostReader {
	_, _ = cpu.PercentWithContext(ctx, 0, false)
	return psutilHost{}
}

func (psutilHost) CPUPercent(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrCollectSample, err)
	}
	if len(percents) == 0 {
		return 0, errFactory.WithMessage(errors.ErrCollectSample, "no CPU counters")
	}

	return percents[0], nil
}

func (psutilHost) Memory(ctx context.Context) (MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStat{}, errors.New().Wrap(errors.ErrCollectSample, err)
	}

	return MemoryStat{
		Percent: vm.UsedPercent,
		Used:    vm.Used,
		Total:   vm.Total,
	}, nil
}
