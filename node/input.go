package node

import "github.com/openfluke/convgraph/cube"

// InputNode has no in-edges: Forward receives cubes directly from the
// caller (Graph.Forward) and dispatches to out-edges without summation
// (§4.5, "Input node: unused... places c directly and immediately
// dispatches"). Backward is a no-op sink, matching the original's
// input_nodes::backward.
type InputNode struct {
	base
}

// NewInputNode creates an input node group with the given channel count.
func NewInputNode(name string, size int) *InputNode {
	return &InputNode{base: newBase(name, size)}
}

func (n *InputNode) Forward(channel int, c *cube.Cube) error {
	if err := n.checkChannel(channel); err != nil {
		return err
	}
	n.buffer[channel] = c
	for _, p := range n.outEdges[channel] {
		out, err := p.Kernel.Forward(c)
		if err != nil {
			return err
		}
		if err := p.Peer.Forward(p.Channel, out); err != nil {
			return err
		}
	}
	return nil
}

// Backward discards the incoming gradient: an input node has nothing
// upstream to propagate to.
func (n *InputNode) Backward(channel int, g *cube.Cube) error {
	return n.checkChannel(channel)
}
