package edge

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
)

// PoolEdge implements §4.4's max-pooling edge: forward runs PoolMax and
// retains the argmax cube and input shape; backward replays
// PoolBackprop against the gradient that arrives, using the retained
// argmax (§3, "Max-pooling edge").
type PoolEdge struct {
	Window, Stride cube.Shape

	lastInputShape cube.Shape
	lastArgmax     *cube.Cube
}

// NewPoolEdge constructs a max-pooling edge with the given window and
// the stride by which PoolMax dilates it. The graph package passes the
// edge group's in_stride here; the edge group's own "stride" option only
// feeds the geometry passes.
func NewPoolEdge(window, stride cube.Shape) *PoolEdge {
	return &PoolEdge{Window: window, Stride: stride}
}

func (e *PoolEdge) Forward(f *cube.Cube) (*cube.Cube, error) {
	out, argmax, err := cube.PoolMax(f, e.Window, e.Stride)
	if err != nil {
		return nil, err
	}
	e.lastInputShape = f.Shape()
	e.lastArgmax = argmax
	return out, nil
}

func (e *PoolEdge) Backward(g *cube.Cube) (*cube.Cube, error) {
	if e.lastArgmax == nil {
		return nil, fmt.Errorf("edge: PoolEdge.Backward called before a matching Forward")
	}
	want := e.lastInputShape.Sub(e.Window.Sub(cube.One).Mul(e.Stride))
	if want != g.Shape() {
		return nil, &cube.ErrShapeMismatch{Op: "PoolEdge.Backward", Input: g.Shape(), Other: e.Window}
	}
	return cube.PoolBackprop(e.lastInputShape, g, e.lastArgmax), nil
}
