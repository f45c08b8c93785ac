// Package gpudevice owns the process-wide WebGPU handle that the
// optional GPU convolution backend (internal/gpuconv) dispatches
// through. Adapted from the teacher's gpu/context.go: a single adapter
// is acquired lazily and reused for the lifetime of the process.
package gpudevice

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Device holds the instance/adapter/device/queue quadruple every
// compute dispatch needs.
type Device struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

var (
	singleton Device
	once      sync.Once
	initErr   error
)

// Get returns the singleton Device, initializing it on first call. A
// machine with no usable adapter returns an error every call; there is
// no retry, since convgraph's GPU path always falls back to CPU.
func Get() (*Device, error) {
	once.Do(func() {
		singleton.Instance = wgpu.CreateInstance(nil)
		if singleton.Instance == nil {
			initErr = fmt.Errorf("gpudevice: failed to create WebGPU instance")
			return
		}

		for _, a := range singleton.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			if strings.Contains(strings.ToLower(info.Name), "nvidia") ||
				strings.Contains(strings.ToLower(info.VendorName), "nvidia") {
				singleton.Adapter = a
				break
			}
		}

		tryInit := func(opts *wgpu.RequestAdapterOptions) error {
			if singleton.Adapter != nil {
				return nil
			}
			var err error
			singleton.Adapter, err = singleton.Instance.RequestAdapter(opts)
			return err
		}

		if singleton.Adapter == nil {
			initErr = tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
		}
		if singleton.Adapter == nil {
			initErr = tryInit(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
		}
		if singleton.Adapter == nil {
			initErr = tryInit(nil)
		}
		if singleton.Adapter == nil {
			initErr = fmt.Errorf("gpudevice: no adapter available: %w", initErr)
			return
		}

		var err error
		singleton.Device, err = singleton.Adapter.RequestDevice(nil)
		if err != nil {
			initErr = fmt.Errorf("gpudevice: RequestDevice: %w", err)
			return
		}
		singleton.Queue = singleton.Device.GetQueue()
	})

	if initErr != nil {
		return nil, initErr
	}
	if singleton.Device == nil || singleton.Queue == nil {
		return nil, fmt.Errorf("gpudevice: device or queue not initialized")
	}
	return &singleton, nil
}

// NewFloatBuffer uploads data as a new GPU buffer with the given usage.
func NewFloatBuffer(d *Device, data []float32, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := d.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(data),
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpudevice: CreateBufferInit: %w", err)
	}
	return buf, nil
}

// ReadBuffer blocks until buffer's content is mapped back to host memory.
func ReadBuffer(d *Device, buffer *wgpu.Buffer, count int) ([]float32, error) {
	sizeBytes := uint64(count * 4)
	staging, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "gpuconv_staging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpudevice: staging buffer: %w", err)
	}
	defer staging.Destroy()

	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpudevice: command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buffer, 0, staging, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpudevice: encoder finish: %w", err)
	}
	d.Queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("gpudevice: map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("gpudevice: MapAsync: %w", err)
	}
	for {
		d.Device.Poll(true, nil)
		select {
		case <-done:
			if mapErr != nil {
				return nil, mapErr
			}
			data := staging.GetMappedRange(0, uint(sizeBytes))
			if data == nil {
				return nil, fmt.Errorf("gpudevice: GetMappedRange returned nil")
			}
			out := make([]float32, count)
			copy(out, wgpu.FromBytes[float32](data))
			staging.Unmap()
			return out, nil
		default:
		}
	}
}
