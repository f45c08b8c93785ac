package node

import "github.com/openfluke/convgraph/cube"

// SummingNode accumulates arrivals from its in-edges per channel
// (element-wise sum) and, once every expected in-edge has arrived,
// dispatches the sum to its out-edges. The post_accumulate hook of §4.5
// is the identity for this variant. A channel with no out-edges keeps its
// sum until the next arrival, so Feature can report it.
type SummingNode struct {
	base
}

// NewSummingNode creates a summing node group with the given channel count.
func NewSummingNode(name string, size int) *SummingNode {
	return &SummingNode{base: newBase(name, size)}
}

func (n *SummingNode) Forward(channel int, c *cube.Cube) error {
	if err := n.checkChannel(channel); err != nil {
		return err
	}
	fire, err := n.accumulate(channel, c, n.InEdgeCount(channel))
	if err != nil {
		return err
	}
	if !fire {
		return nil
	}
	buf := n.buffer[channel]
	for _, p := range n.outEdges[channel] {
		out, err := p.Kernel.Forward(buf)
		if err != nil {
			return err
		}
		if err := p.Peer.Forward(p.Channel, out); err != nil {
			return err
		}
	}
	if len(n.outEdges[channel]) == 0 {
		// A terminal channel keeps its sum as the node's output feature.
		n.received[channel] = 0
		return nil
	}
	n.release(channel)
	return nil
}

func (n *SummingNode) Backward(channel int, g *cube.Cube) error {
	if err := n.checkChannel(channel); err != nil {
		return err
	}
	fire, err := n.accumulate(channel, g, n.OutEdgeCount(channel))
	if err != nil {
		return err
	}
	if !fire {
		return nil
	}
	buf := n.buffer[channel]
	for _, p := range n.inEdges[channel] {
		grad, err := p.Kernel.Backward(buf)
		if err != nil {
			return err
		}
		if err := p.Peer.Backward(p.Channel, grad); err != nil {
			return err
		}
	}
	n.release(channel)
	return nil
}
