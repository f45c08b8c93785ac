// Package node implements the three NodeGroup variants of §3/§4.5: Input,
// Summing, and Transfer. A NodeGroup owns per-channel accumulator
// buffers and dispatches to its neighbors once every expected arrival for
// a channel has landed, per the accumulation protocol of §4.5.
package node

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
)

// Edge is the narrow capability a node group needs from an edge kernel:
// turn one cube into another, in each direction. edge.ConvEdge,
// edge.PoolEdge, and edge.IdentityEdge all satisfy this structurally.
type Edge interface {
	Forward(f *cube.Cube) (*cube.Cube, error)
	Backward(g *cube.Cube) (*cube.Cube, error)
}

// NodeGroup is the uniform contract every node variant exposes after
// construction (§9, "Polymorphism over node and edge variants": the type
// string is examined only at construction time).
type NodeGroup interface {
	Name() string
	Size() int

	Forward(channel int, c *cube.Cube) error
	Backward(channel int, g *cube.Cube) error

	AttachOut(channel int, p *Port)
	AttachIn(channel int, p *Port)
	OutEdgeCount(channel int) int
	InEdgeCount(channel int) int

	Geometry() Geometry
	SetGeometry(Geometry)

	// Feature returns the node's current per-channel feature cube. Valid
	// to call once Forward has fired for that channel in the current
	// pass; used by Graph.Forward to collect output-node results.
	Feature(channel int) *cube.Cube
}

// Geometry holds the §4.6 fields computed by the two graph-init fixpoint
// passes: field of view, sampling stride, and feature-map spatial size.
type Geometry struct {
	FOV, Stride, FSize cube.Shape
}

// Port pairs an edge kernel with the neighboring node group and channel
// it feeds into (or receives from). A single logical edge is referenced
// by exactly one Port in its source's out-edge list and one Port (same
// Kernel) in its destination's in-edge list — the two halves of I1.
type Port struct {
	Kernel  Edge
	Peer    NodeGroup
	Channel int
}

// ProtocolViolation reports a broken accumulation-protocol precondition
// (§7): a channel index out of range, or an arrival on a channel whose
// count already equals its expected fan-in/fan-out (which happens only
// when an earlier dispatch on that channel failed before the count was
// reset). Counts reset every time a channel fires, so a channel that is
// fired again within one pass starts a new accumulation and is not
// reported.
type ProtocolViolation struct {
	Node    string
	Channel int
	Reason  string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("node %s channel %d: %s", e.Node, e.Channel, e.Reason)
}

// base holds the bookkeeping shared by all three variants: per-channel
// edge lists, arrival counts, and the accumulator buffer.
type base struct {
	name     string
	size     int
	outEdges [][]*Port
	inEdges  [][]*Port
	received []int
	buffer   []*cube.Cube
	geom     Geometry
}

func newBase(name string, size int) base {
	return base{
		name:     name,
		size:     size,
		outEdges: make([][]*Port, size),
		inEdges:  make([][]*Port, size),
		received: make([]int, size),
		buffer:   make([]*cube.Cube, size),
	}
}

func (b *base) Name() string { return b.name }
func (b *base) Size() int    { return b.size }

func (b *base) AttachOut(channel int, p *Port) { b.outEdges[channel] = append(b.outEdges[channel], p) }
func (b *base) AttachIn(channel int, p *Port)  { b.inEdges[channel] = append(b.inEdges[channel], p) }

func (b *base) OutEdgeCount(channel int) int { return len(b.outEdges[channel]) }
func (b *base) InEdgeCount(channel int) int  { return len(b.inEdges[channel]) }

func (b *base) Geometry() Geometry      { return b.geom }
func (b *base) SetGeometry(g Geometry)  { b.geom = g }

func (b *base) Feature(channel int) *cube.Cube { return b.buffer[channel] }

func (b *base) checkChannel(channel int) error {
	if channel < 0 || channel >= b.size {
		return &ProtocolViolation{Node: b.name, Channel: channel, Reason: "channel index out of range"}
	}
	return nil
}

// accumulate folds c into the channel's buffer (take-or-sum, per §4.5) and
// reports whether this arrival completed the expected fan-in. A terminal
// channel (expected == 0, i.e. no out-edges on backward) fires on its
// first and only arrival, per §4.5's "or outputs_[n].size() == 0" rule.
func (b *base) accumulate(channel int, c *cube.Cube, expected int) (bool, error) {
	effective := expected
	if effective == 0 {
		effective = 1
	}
	if b.received[channel] >= effective {
		return false, &ProtocolViolation{
			Node: b.name, Channel: channel,
			Reason: fmt.Sprintf("received %d arrivals, exceeds expected fan-in %d", b.received[channel]+1, effective),
		}
	}
	if b.received[channel] == 0 {
		b.buffer[channel] = c
	} else {
		b.buffer[channel].AddInPlace(c)
	}
	b.received[channel]++
	return b.received[channel] == effective, nil
}

func (b *base) release(channel int) {
	b.received[channel] = 0
	b.buffer[channel] = nil
}
