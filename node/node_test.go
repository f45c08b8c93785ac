package node

import (
	"testing"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/edge"
	"github.com/openfluke/convgraph/param"
	"github.com/openfluke/convgraph/transfer"
)

// TestSummingNodeAccumulationSymmetry reproduces S5: a summing node fed by
// two identity edges from two distinct source channels sums on forward
// and distributes the same gradient unchanged to both in-edges on
// backward.
func TestSummingNodeAccumulationSymmetry(t *testing.T) {
	src0 := NewInputNode("src0", 1)
	src1 := NewInputNode("src1", 1)
	sum := NewSummingNode("sum", 1)

	wire(src0, 0, edge.NewIdentityEdge(), sum, 0)
	wire(src1, 0, edge.NewIdentityEdge(), sum, 0)

	a := cube.Fill(cube.Shape{1, 1, 1}, 2)
	b := cube.Fill(cube.Shape{1, 1, 1}, 3)

	if err := src0.Forward(0, a); err != nil {
		t.Fatalf("src0.Forward: %v", err)
	}
	if err := src1.Forward(0, b); err != nil {
		t.Fatalf("src1.Forward: %v", err)
	}

	got := sum.Feature(0)
	if got.At(0, 0, 0) != 5 {
		t.Fatalf("sum feature = %v, want 5", got.At(0, 0, 0))
	}

	g := cube.Fill(cube.Shape{1, 1, 1}, 7)
	if err := sum.Backward(0, g); err != nil {
		t.Fatalf("sum.Backward: %v", err)
	}
}

// wire connects src channel srcCh to dst channel dstCh through k, mirroring
// what graph.New does during edge-group instantiation.
func wire(src NodeGroup, srcCh int, k Edge, dst NodeGroup, dstCh int) {
	src.AttachOut(srcCh, &Port{Kernel: k, Peer: dst, Channel: dstCh})
	dst.AttachIn(dstCh, &Port{Kernel: k, Peer: src, Channel: srcCh})
}

func TestSummingNodeChannelOutOfRange(t *testing.T) {
	sum := NewSummingNode("sum", 1)
	if err := sum.Forward(5, cube.Fill(cube.Shape{1, 1, 1}, 1)); err == nil {
		t.Error("expected ProtocolViolation for out-of-range channel")
	}
}

func TestSummingNodeDoubleFireIsProtocolViolation(t *testing.T) {
	src := NewInputNode("src", 1)
	sum := NewSummingNode("sum", 1)
	wire(src, 0, edge.NewIdentityEdge(), sum, 0)

	// sum expects exactly one in-edge; firing it twice in one pass without
	// a release in between must be rejected.
	if err := sum.Forward(0, cube.Fill(cube.Shape{1, 1, 1}, 1)); err != nil {
		t.Fatalf("first forward: %v", err)
	}
	if err := sum.Forward(0, cube.Fill(cube.Shape{1, 1, 1}, 1)); err == nil {
		t.Error("expected ProtocolViolation on exceeding expected fan-in")
	}
}

// TestTransferNodeAppliesLinearAndUpdatesBias reproduces scenario S1's
// bias update (identity edge into a linear transfer node).
func TestTransferNodeAppliesLinearAndUpdatesBias(t *testing.T) {
	in := NewInputNode("in", 1)
	linear, err := transfer.Get("linear")
	if err != nil {
		t.Fatalf("transfer.Get: %v", err)
	}
	bias := param.NewBias(0, 0.1, 0, 0)
	out := NewTransferNode("out", linear, []*param.Bias{bias})

	wire(in, 0, edge.NewIdentityEdge(), out, 0)

	c := cube.New(cube.Shape{2, 2, 2})
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				c.Set(x, y, z, float64(x+2*y+4*z))
			}
		}
	}
	if err := in.Forward(0, c); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if !out.Feature(0).Equal(c) {
		t.Errorf("out feature = %v, want %v", out.Feature(0).Data(), c.Data())
	}

	g := c.Clone()
	if err := out.Backward(0, g); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if got, want := bias.B, -2.8; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("bias = %v, want %v", got, want)
	}
}
