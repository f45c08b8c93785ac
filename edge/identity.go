// Package edge implements the three Edge kernel variants of §4.4:
// IdentityEdge, PoolEdge, and ConvEdge. Each is a stateful object with
// Forward(cube) -> cube and Backward(cube) -> cube; none of them know
// about the node groups they connect — that wiring lives in node.Port and
// is assembled by the graph package.
package edge

import "github.com/openfluke/convgraph/cube"

// IdentityEdge is stateless but still copies its input on both forward
// and backward, to enforce the immutability of upstream buffers (§3),
// matching the original's dummy_edge::forward/backward (get_copy).
type IdentityEdge struct{}

// NewIdentityEdge constructs an identity edge. src.size must equal
// dst.size for an identity edge group (enforced by the graph package);
// the edge kernel itself is unconditional copy, independent of channel.
func NewIdentityEdge() *IdentityEdge {
	return &IdentityEdge{}
}

func (e *IdentityEdge) Forward(f *cube.Cube) (*cube.Cube, error) {
	return f.Clone(), nil
}

func (e *IdentityEdge) Backward(g *cube.Cube) (*cube.Cube, error) {
	return g.Clone(), nil
}
