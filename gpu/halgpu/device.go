package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/gpu"
)

// ErrNoAdapter is returned when a backend exposes no adapters.
var ErrNoAdapter = errors.New("halgpu: no adapters found")

// preferredBackends orders backends for OpenBest. The empty backend (noop or
// the software rasterizer) is the last resort.
var preferredBackends = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Open creates a context on a device of the registered hal backend variant.
// The backend package must be imported for side effects first.
func Open(variant gputypes.Backend, opts ...Option) (*Context, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("halgpu: %s: %w", variant, hal.ErrBackendNotFound)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create %s instance: %w", variant, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: %s: %w", variant, ErrNoAdapter)
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	limits := selected.Capabilities.Limits
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open %s device: %w", selected.Info.Name, err)
	}

	ctx, err := New(openDev.Device, openDev.Queue, append([]Option{withLimits(limits)}, opts...)...)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	ctx.owned = &ownedDevice{instance: instance, device: openDev.Device}
	slogger().Info("halgpu: device opened", "backend", variant.String(), "adapter", selected.Info.Name)
	return ctx, nil
}

// OpenBest opens the first registered backend in preference order that
// yields a device.
func OpenBest(opts ...Option) (*Context, error) {
	var errs []error
	for _, variant := range preferredBackends {
		if _, ok := hal.GetBackend(variant); !ok {
			continue
		}
		ctx, err := Open(variant, opts...)
		if err == nil {
			return ctx, nil
		}
		slogger().Debug("halgpu: backend unusable", "backend", variant.String(), "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, hal.ErrBackendNotFound
	}
	return nil, errors.Join(errs...)
}

// Available reports whether any hal backend is registered.
func Available() bool {
	return len(hal.AvailableBackends()) > 0
}

// halProvider is implemented by device providers that expose their hal
// objects. gpucontext.DeviceProvider only carries opaque handles.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider creates a context sharing the device of a host
// application. The provider must implement HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue. The context never destroys the
// shared device.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	if provider == nil {
		return nil, errors.New("halgpu: nil device provider")
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("halgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("halgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("halgpu: provider HalQueue is not hal.Queue")
	}

	if f := provider.SurfaceFormat(); f == gputypes.TextureFormatBGRA8Unorm || f == gputypes.TextureFormatRGBA8Unorm {
		opts = append([]Option{WithFormat(gpu.FormatFromTexture(f))}, opts...)
	}
	info := provider.AdapterInfo()
	slogger().Info("halgpu: using shared device", "adapter", info.Name, "type", info.Type.String())
	return New(device, queue, opts...)
}

// ownedDevice is the instance and device a context opened itself.
type ownedDevice struct {
	instance hal.Instance
	device   hal.Device
}

func (o *ownedDevice) destroy() {
	o.device.Destroy()
	o.instance.Destroy()
}
