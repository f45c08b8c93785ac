// Package gpuconv is the optional WebGPU-accelerated implementation of
// §4.1's forward dilated cross-correlation, adapted from the teacher's
// gpu/conv2d.go compute-shader layer generator and gpu/buffer.go's
// upload/read-back helpers. A Convolver satisfies edge.GPUConvolver
// structurally; a ConvEdge with a nil GPU field skips this package
// entirely and always runs on CPU.
package gpuconv

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/internal/gpudevice"
	"github.com/openfluke/webgpu/wgpu"
)

// Convolver dispatches one forward convolution per call. It holds no
// cross-call GPU state; every ConvolveSparse call compiles its own
// shader sized to the cube shapes involved, trading reuse for the
// simplicity of a stateless kernel that any number of ConvEdges can
// share concurrently... except convgraph's single-threaded scheduling
// model (§5) never calls it concurrently in the first place.
type Convolver struct{}

// New returns a Convolver. The zero value is equally usable: there is no
// per-instance state to initialize.
func New() *Convolver { return &Convolver{} }

func (c *Convolver) ConvolveSparse(in, w *cube.Cube, stride cube.Shape) (*cube.Cube, error) {
	ishape := in.Shape()
	wshape := w.Shape()
	oshape := cube.Shape{
		ishape[0] - (wshape[0]-1)*stride[0],
		ishape[1] - (wshape[1]-1)*stride[1],
		ishape[2] - (wshape[2]-1)*stride[2],
	}
	if !oshape.Positive() {
		return nil, &cube.ErrShapeMismatch{Op: "gpuconv.ConvolveSparse", Input: ishape, Other: wshape}
	}

	d, err := gpudevice.Get()
	if err != nil {
		return nil, fmt.Errorf("gpuconv: %w", err)
	}

	inData := toFloat32(in.Data())
	wData := toFloat32(w.Data())
	outCount := oshape.Vol()

	inBuf, err := gpudevice.NewFloatBuffer(d, inData, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("gpuconv: input buffer: %w", err)
	}
	defer inBuf.Destroy()

	wBuf, err := gpudevice.NewFloatBuffer(d, wData, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("gpuconv: weight buffer: %w", err)
	}
	defer wBuf.Destroy()

	outBuf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "gpuconv_out",
		Size:  uint64(outCount * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("gpuconv: output buffer: %w", err)
	}
	defer outBuf.Destroy()

	mod, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "gpuconv_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaderSource(ishape, wshape, stride, oshape)},
	})
	if err != nil {
		return nil, fmt.Errorf("gpuconv: shader module: %w", err)
	}

	pipeline, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "gpuconv_pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("gpuconv: compute pipeline: %w", err)
	}
	defer pipeline.Release()

	bindGroup, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "gpuconv_bind",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: inBuf, Size: inBuf.GetSize()},
			{Binding: 1, Buffer: wBuf, Size: wBuf.GetSize()},
			{Binding: 2, Buffer: outBuf, Size: outBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpuconv: bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpuconv: command encoder: %w", err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((outCount+255)/256), 1, 1)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpuconv: encoder finish: %w", err)
	}
	d.Queue.Submit(cmd)

	outData, err := gpudevice.ReadBuffer(d, outBuf, outCount)
	if err != nil {
		return nil, fmt.Errorf("gpuconv: read back: %w", err)
	}
	return cube.NewFromSlice(oshape, toFloat64(outData)), nil
}

// shaderSource generates a WGSL compute kernel for one dilated
// cross-correlation, specialized to the cube shapes and stride
// involved (no bounds checking: the caller already validated that
// every sampled index is in range, per §4.1).
func shaderSource(ishape, wshape, stride, oshape cube.Shape) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input_cube : array<f32>;
		@group(0) @binding(1) var<storage, read> weight_cube : array<f32>;
		@group(0) @binding(2) var<storage, read_write> output_cube : array<f32>;

		const IY: u32 = %du;
		const IZ: u32 = %du;
		const WX: u32 = %du;
		const WY: u32 = %du;
		const WZ: u32 = %du;
		const SX: u32 = %du;
		const SY: u32 = %du;
		const SZ: u32 = %du;
		const OY: u32 = %du;
		const OZ: u32 = %du;
		const TOTAL: u32 = %du;

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;
			if (idx >= TOTAL) { return; }

			let z = idx %% OZ;
			let y = (idx / OZ) %% OY;
			let x = idx / (OZ * OY);

			var sum: f32 = 0.0;
			for (var a: u32 = 0u; a < WX; a++) {
				for (var b: u32 = 0u; b < WY; b++) {
					for (var c: u32 = 0u; c < WZ; c++) {
						let ix = x + a * SX;
						let iy = y + b * SY;
						let iz = z + c * SZ;
						let i_idx = ix * IY * IZ + iy * IZ + iz;
						let w_idx = a * WY * WZ + b * WZ + c;
						sum += input_cube[i_idx] * weight_cube[w_idx];
					}
				}
			}
			output_cube[idx] = sum;
		}
	`, ishape[1], ishape[2], wshape[0], wshape[1], wshape[2], stride[0], stride[1], stride[2],
		oshape[1], oshape[2], oshape.Vol())
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
