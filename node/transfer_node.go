package node

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/param"
	"github.com/openfluke/convgraph/transfer"
)

// TransferNode behaves like SummingNode on accumulation, but applies a
// per-channel nonlinearity after the forward sum and owns one Bias per
// channel (§3, §4.5). The post-activation feature cube is retained across
// the matching backward call, which multiplies the incoming gradient by
// phi'(feature), updates the channel's Bias, and only then dispatches to
// in-edges.
type TransferNode struct {
	base
	Fn         transfer.Function
	Biases     []*param.Bias
	gradBuffer []*cube.Cube
	gradRecv   []int
}

// NewTransferNode creates a transfer node group. biases must have one
// entry per channel.
func NewTransferNode(name string, fn transfer.Function, biases []*param.Bias) *TransferNode {
	size := len(biases)
	return &TransferNode{
		base:       newBase(name, size),
		Fn:         fn,
		Biases:     biases,
		gradBuffer: make([]*cube.Cube, size),
		gradRecv:   make([]int, size),
	}
}

func (n *TransferNode) Forward(channel int, c *cube.Cube) error {
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
	n.Fn.Apply(n.buffer[channel], n.Biases[channel].B)
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
	n.received[channel] = 0
	// feature[i] (n.buffer[channel]) is deliberately retained for backward.
	return nil
}

func (n *TransferNode) Backward(channel int, g *cube.Cube) error {
	if err := n.checkChannel(channel); err != nil {
		return err
	}
	expected := n.OutEdgeCount(channel)
	effective := expected
	if effective == 0 {
		effective = 1
	}
	if n.gradRecv[channel] >= effective {
		return &ProtocolViolation{
			Node: n.name, Channel: channel,
			Reason: fmt.Sprintf("received %d gradient arrivals, exceeds expected fan-out %d", n.gradRecv[channel]+1, effective),
		}
	}
	if n.gradRecv[channel] == 0 {
		n.gradBuffer[channel] = g
	} else {
		n.gradBuffer[channel].AddInPlace(g)
	}
	n.gradRecv[channel]++
	if n.gradRecv[channel] != effective {
		return nil
	}

	grad := n.gradBuffer[channel]
	feature := n.buffer[channel]
	n.Fn.ApplyGrad(grad, feature)
	n.Biases[channel].Update(grad.Sum())

	for _, p := range n.inEdges[channel] {
		dIn, err := p.Kernel.Backward(grad)
		if err != nil {
			return err
		}
		if err := p.Peer.Backward(p.Channel, dIn); err != nil {
			return err
		}
	}

	n.gradRecv[channel] = 0
	n.gradBuffer[channel] = nil
	n.buffer[channel] = nil
	return nil
}
