package edge

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/param"
)

// GPUConvolver is the optional accelerated backend for §4.1's forward
// dilated cross-correlation (§11, DOMAIN STACK). A nil GPUConvolver means
// ConvEdge runs entirely on CPU, which is always correct and is the
// default.
type GPUConvolver interface {
	ConvolveSparse(in, w *cube.Cube, stride cube.Shape) (*cube.Cube, error)
}

// ConvEdge implements §4.4's convolution edge: it owns a (shared,
// non-owning) reference to a Filter, holds the in_stride fixed at graph
// init, and retains last_input between a forward call and its matching
// backward.
type ConvEdge struct {
	Filter   *param.Filter
	InStride cube.Shape
	GPU      GPUConvolver

	lastInput *cube.Cube
}

// NewConvEdge constructs a convolution edge over a shared Filter. gpu may
// be nil to force CPU execution.
func NewConvEdge(f *param.Filter, inStride cube.Shape, gpu GPUConvolver) *ConvEdge {
	return &ConvEdge{Filter: f, InStride: inStride, GPU: gpu}
}

func (e *ConvEdge) Forward(f *cube.Cube) (*cube.Cube, error) {
	e.lastInput = f
	if e.GPU != nil {
		out, err := e.GPU.ConvolveSparse(f, e.Filter.W, e.InStride)
		if err == nil {
			return out, nil
		}
		// Fall back to CPU rather than fail a forward pass over a GPU
		// hiccup; the CPU kernel is always correct.
	}
	return cube.ConvolveSparse(f, e.Filter.W, e.InStride)
}

func (e *ConvEdge) Backward(g *cube.Cube) (*cube.Cube, error) {
	if e.lastInput == nil {
		return nil, fmt.Errorf("edge: ConvEdge.Backward called before a matching Forward")
	}
	dW, err := cube.ConvolveSparseFlipped(e.lastInput, g, e.InStride, e.Filter.W.Shape())
	if err != nil {
		return nil, err
	}
	dI, err := cube.ConvolveSparseInverse(g, e.Filter.W, e.InStride, e.lastInput.Shape())
	if err != nil {
		return nil, err
	}
	e.Filter.Update(dW)
	e.lastInput = nil
	return dI, nil
}
