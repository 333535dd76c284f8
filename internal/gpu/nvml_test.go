package gpu

import (
	"context"
	"testing"

	apperrors "codeberg.org/mutker/argus/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	name    string
	nameRet nvml.Return
	util    uint32
	utilRet nvml.Return
	temp    uint32
}

func (d *fakeDevice) GetName() (string, nvml.Return) { return d.name, d.nameRet }

func (d *fakeDevice) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: d.util}, d.utilRet
}

func (d *fakeDevice) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return d.temp, nvml.SUCCESS
}

type fakeController struct {
	initErr   error
	device    *fakeDevice
	inits     int
	shutdowns int
	index     int
}

func (c *fakeController) Initialize() error {
	c.inits++
	return c.initErr
}

func (c *fakeController) Shutdown() error {
	c.shutdowns++
	return nil
}

func (c *fakeController) GetDevice(index int) (nvmlDevice, error) {
	c.index = index
	return c.device, nil
}

func TestNVMLBackendProbe(t *testing.T) {
	ctrl := &fakeController{device: &fakeDevice{name: "NVIDIA RTX A4000", util: 33, temp: 58}}
	b := newNVMLBackend(1, ctrl)

	for i := 0; i < 3; i++ {
		r, err := b.Probe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 33.0, *r.Usage)
		assert.Equal(t, 58.0, *r.TempC)
		assert.Equal(t, "NVIDIA RTX A4000", *r.Name)
	}

	assert.Equal(t, 1, ctrl.inits, "handle reused across probes")
	assert.Equal(t, 1, ctrl.index)

	require.NoError(t, b.Close())
	assert.Equal(t, 1, ctrl.shutdowns)

	_, err := b.Probe(context.Background())
	assert.Error(t, err, "closed backend stays disabled")
}

func TestNVMLBackendEmptyNameIsNil(t *testing.T) {
	for _, name := range []string{"", "   "} {
		ctrl := &fakeController{device: &fakeDevice{name: name, util: 5, temp: 40}}
		b := newNVMLBackend(0, ctrl)

		r, err := b.Probe(context.Background())
		require.NoError(t, err)
		require.NotNil(t, r.Usage)
		require.NotNil(t, r.TempC)
		assert.Nil(t, r.Name)
	}
}

func TestNVMLBackendInitFailureIsPermanent(t *testing.T) {
	ctrl := &fakeController{initErr: apperrors.New().New(ErrInitFailed)}
	b := newNVMLBackend(0, ctrl)

	for i := 0; i < 3; i++ {
		_, err := b.Probe(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, ErrBackendDisabled))
		assert.True(t, apperrors.HasCode(err, ErrInitFailed))
	}
	assert.Equal(t, 1, ctrl.inits)
	require.NoError(t, b.Close())
	assert.Zero(t, ctrl.shutdowns)
}

func TestNVMLBackendNameFailureDisables(t *testing.T) {
	ctrl := &fakeController{device: &fakeDevice{nameRet: nvml.ERROR_UNKNOWN}}
	b := newNVMLBackend(0, ctrl)

	_, err := b.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrDeviceInfoFailed))
	assert.Equal(t, 1, ctrl.shutdowns, "NVML released after a failed init")
}

func TestNVMLBackendQueryFailureIsTransient(t *testing.T) {
	device := &fakeDevice{name: "GPU", utilRet: nvml.ERROR_GPU_IS_LOST}
	ctrl := &fakeController{device: device}
	b := newNVMLBackend(0, ctrl)

	_, err := b.Probe(context.Background())
	assert.True(t, apperrors.HasCode(err, ErrUtilizationReadFailed))

	device.utilRet = nvml.SUCCESS
	_, err = b.Probe(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, ctrl.inits)
}
