package gpu_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/mutker/argus/internal/clock"
	"codeberg.org/mutker/argus/internal/gpu"
	"codeberg.org/mutker/argus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mode  gpu.Mode
	err   error
	usage float64
	calls int
}

func (f *fakeBackend) Mode() gpu.Mode { return f.mode }

func (f *fakeBackend) Probe(context.Context) (gpu.Reading, error) {
	f.calls++
	if f.err != nil {
		return gpu.Reading{}, f.err
	}
	usage, temp, name := f.usage, 55.0, "Test GPU"
	return gpu.Reading{Usage: &usage, TempC: &temp, Name: &name}, nil
}

func newReader(primary, secondary *fakeBackend, clk clock.Clock) *gpu.Reader {
	return gpu.NewReader(
		gpu.Config{Enabled: true, Index: 0},
		logger.Nop(),
		gpu.WithClock(clk),
		gpu.WithBackends(primary, secondary),
	)
}

func TestReadPrefersPrimary(t *testing.T) {
	primary := &fakeBackend{mode: gpu.ModeNVML, usage: 10}
	secondary := &fakeBackend{mode: gpu.ModeSMI, usage: 20}
	r := newReader(primary, secondary, clock.Fake(epoch))

	reading := r.Read(context.Background())
	require.NotNil(t, reading.Usage)
	assert.Equal(t, 10.0, *reading.Usage)
	assert.Equal(t, gpu.ModeNVML, reading.Source)
	assert.Zero(t, secondary.calls)
	assert.Equal(t, gpu.ModeNVML, r.Status().Mode)
}

func TestReadFallsBackToSecondaryAndLocks(t *testing.T) {
	primary := &fakeBackend{mode: gpu.ModeNVML, err: errors.New("no nvml")}
	secondary := &fakeBackend{mode: gpu.ModeSMI, usage: 20}
	r := newReader(primary, secondary, clock.Fake(epoch))
	ctx := context.Background()

	reading := r.Read(ctx)
	assert.Equal(t, gpu.ModeSMI, reading.Source)
	assert.Equal(t, 1, primary.calls)

	reading = r.Read(ctx)
	assert.Equal(t, gpu.ModeSMI, reading.Source)
	assert.Equal(t, 1, primary.calls, "primary not retried while locked to secondary")
	assert.Equal(t, 2, secondary.calls)

	st := r.Status()
	assert.Equal(t, gpu.ModeSMI, st.Mode)
	assert.Zero(t, st.FailCount)
	assert.Empty(t, st.LastError)
}

func TestReadBackoffAfterFailures(t *testing.T) {
	primary := &fakeBackend{mode: gpu.ModeNVML, err: errors.New("no nvml")}
	secondary := &fakeBackend{mode: gpu.ModeSMI, err: errors.New("no smi")}
	clk := clock.Fake(epoch)
	r := newReader(primary, secondary, clk)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		reading := r.Read(ctx)
		assert.True(t, reading.Empty())
		assert.Equal(t, i, primary.calls)
		assert.Equal(t, i, secondary.calls)

		st := r.Status()
		assert.Equal(t, i, st.FailCount)
		assert.Equal(t, gpu.ModeNone, st.Mode)
		assert.Equal(t, "no smi", st.LastError)
		if i < 3 {
			clk.Advance(st.NextRetryAt.Sub(clk.Now()))
		}
	}

	st := r.Status()
	assert.Equal(t, 12*time.Second, st.NextRetryAt.Sub(clk.Now()))

	clk.Advance(11 * time.Second)
	assert.True(t, r.Read(ctx).Empty())
	assert.Equal(t, 3, primary.calls, "no probing during backoff")
	assert.Equal(t, 3, secondary.calls)

	secondary.err = nil
	clk.Advance(time.Second)
	reading := r.Read(ctx)
	assert.Equal(t, gpu.ModeSMI, reading.Source)
	assert.Equal(t, 4, primary.calls, "primary re-probed after backoff")

	st = r.Status()
	assert.Zero(t, st.FailCount)
	assert.True(t, st.NextRetryAt.IsZero())
	assert.Empty(t, st.LastError)
}

func TestReadLockedBackendFailureResetsMode(t *testing.T) {
	primary := &fakeBackend{mode: gpu.ModeNVML, usage: 10}
	secondary := &fakeBackend{mode: gpu.ModeSMI, usage: 20}
	clk := clock.Fake(epoch)
	r := newReader(primary, secondary, clk)
	ctx := context.Background()

	r.Read(ctx)
	primary.err = errors.New("lost")

	assert.True(t, r.Read(ctx).Empty(), "locked to primary, secondary not tried")
	assert.Zero(t, secondary.calls)

	st := r.Status()
	assert.Equal(t, gpu.ModeNone, st.Mode)
	assert.Equal(t, 1, st.FailCount)
	assert.Equal(t, 3*time.Second, st.NextRetryAt.Sub(clk.Now()))

	clk.Advance(3 * time.Second)
	reading := r.Read(ctx)
	assert.Equal(t, gpu.ModeSMI, reading.Source)
}

func TestReadDisabled(t *testing.T) {
	primary := &fakeBackend{mode: gpu.ModeNVML}
	r := gpu.NewReader(gpu.Config{Enabled: false, Index: 1}, logger.Nop(),
		gpu.WithClock(clock.Fake(epoch)),
		gpu.WithBackends(primary, nil),
	)

	assert.True(t, r.Read(context.Background()).Empty())
	assert.Zero(t, primary.calls)

	st := r.Status()
	assert.False(t, st.Enabled)
	assert.Equal(t, 1, st.Index)
	assert.Zero(t, st.FailCount)
}

func TestReadNoBackends(t *testing.T) {
	r := gpu.NewReader(gpu.Config{Enabled: true}, logger.Nop(),
		gpu.WithClock(clock.Fake(epoch)),
		gpu.WithBackends(nil, nil),
	)

	assert.True(t, r.Read(context.Background()).Empty())
	assert.Equal(t, 1, r.Status().FailCount)
	assert.NotEmpty(t, r.Status().LastError)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failCount int
		want      time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 12 * time.Second},
		{4, 24 * time.Second},
		{5, 48 * time.Second},
		{6, 48 * time.Second},
		{100, 48 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gpu.Backoff(tt.failCount), "fail count %d", tt.failCount)
	}
}
