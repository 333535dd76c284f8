package gpu

import (
	"context"
	"strings"
	"sync"

	"codeberg.org/mutker/argus/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDevice(index int) (nvmlDevice, error)
}

// nvmlDevice is the subset of nvml.Device the backend queries.
type nvmlDevice interface {
	GetName() (string, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !isNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !isNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDevice(index int) (nvmlDevice, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !isNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

// nvmlBackend keeps one device handle for the life of the process.
// Initialization is attempted once; if it fails the backend stays
// disabled.
type nvmlBackend struct {
	index int
	ctrl  nvmlController

	mu        sync.Mutex
	attempted bool
	initErr   error
	device    nvmlDevice
	name      string
}

func newNVMLBackend(index int, ctrl nvmlController) *nvmlBackend {
	return &nvmlBackend{index: index, ctrl: ctrl}
}

func (*nvmlBackend) Mode() Mode { return ModeNVML }

func (b *nvmlBackend) Probe(context.Context) (Reading, error) {
	errFactory := errors.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attempted {
		b.attempted = true
		b.initErr = b.init()
	}
	if b.initErr != nil {
		return Reading{}, errFactory.Wrap(ErrBackendDisabled, b.initErr)
	}

	util, ret := b.device.GetUtilizationRates()
	if !isNVMLSuccess(ret) {
		return Reading{}, errFactory.Wrap(ErrUtilizationReadFailed, newNVMLError(ret))
	}

	temp, ret := b.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !isNVMLSuccess(ret) {
		return Reading{}, errFactory.Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	usage := float64(util.Gpu)
	tempC := float64(temp)
	reading := Reading{Usage: &usage, TempC: &tempC}
	if name := strings.TrimSpace(b.name); name != "" {
		reading.Name = &name
	}

	return reading, nil
}

func (b *nvmlBackend) init() error {
	errFactory := errors.New()

	if err := b.ctrl.Initialize(); err != nil {
		return err
	}

	device, err := b.ctrl.GetDevice(b.index)
	if err != nil {
		_ = b.ctrl.Shutdown()
		return err
	}

	name, ret := device.GetName()
	if !isNVMLSuccess(ret) {
		_ = b.ctrl.Shutdown()
		return errFactory.Wrap(ErrDeviceInfoFailed, newNVMLError(ret))
	}

	b.device = device
	b.name = name

	return nil
}

// Close releases NVML if it was initialized.
func (b *nvmlBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		return nil
	}
	b.device = nil
	b.initErr = errors.New().New(ErrNotInitialized)

	return b.ctrl.Shutdown()
}
