package cube

import (
	"math"
	"math/rand"
	"testing"
)

// TestConvolveSparseDenseReduction checks P2: with stride (1,1,1),
// ConvolveSparse matches a naive triple-sum dense cross-correlation.
func TestConvolveSparseDenseReduction(t *testing.T) {
	in := NewFromSlice(Shape{3, 3, 3}, sequential(27))
	w := NewFromSlice(Shape{2, 2, 2}, []float64{1, 0, 0, 1, 0, 1, 1, 0})

	out, err := ConvolveSparse(in, w, Shape{1, 1, 1})
	if err != nil {
		t.Fatalf("ConvolveSparse: %v", err)
	}

	want := naiveConv(in, w, Shape{1, 1, 1})
	if !out.Equal(want) {
		t.Errorf("ConvolveSparse does not match naive dense cross-correlation")
	}
}

// TestConvolveSparseOutputShape checks P3: round-trip shape relation.
func TestConvolveSparseOutputShape(t *testing.T) {
	in := New(Shape{9, 9, 9})
	w := New(Shape{3, 3, 3})
	stride := Shape{2, 2, 2}
	out, err := ConvolveSparse(in, w, stride)
	if err != nil {
		t.Fatalf("ConvolveSparse: %v", err)
	}
	got := out.Shape().Add(w.Shape().Sub(One).Mul(stride))
	if got != in.Shape() {
		t.Errorf("round-trip shape = %v, want %v", got, in.Shape())
	}
}

// TestConvolveSparseShapeMismatch checks that a kernel larger than the
// input (after dilation) is rejected rather than producing garbage.
func TestConvolveSparseShapeMismatch(t *testing.T) {
	in := New(Shape{2, 2, 2})
	w := New(Shape{3, 3, 3})
	_, err := ConvolveSparse(in, w, Shape{1, 1, 1})
	if err == nil {
		t.Fatal("expected ErrShapeMismatch, got nil")
	}
}

// TestAdjointIdentity checks P4: the weight-gradient and input-gradient
// adjoints agree with the forward operator under the inner product.
func TestAdjointIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	in := randomCube(rng, Shape{6, 6, 6})
	w := randomCube(rng, Shape{3, 3, 3})
	stride := Shape{1, 2, 1}

	out, err := ConvolveSparse(in, w, stride)
	if err != nil {
		t.Fatalf("ConvolveSparse: %v", err)
	}
	dOut := randomCube(rng, out.Shape())

	lhs := Inner(out, dOut)

	dI, err := ConvolveSparseInverse(dOut, w, stride, in.Shape())
	if err != nil {
		t.Fatalf("ConvolveSparseInverse: %v", err)
	}
	mid := Inner(in, dI)

	dW, err := ConvolveSparseFlipped(in, dOut, stride, w.Shape())
	if err != nil {
		t.Fatalf("ConvolveSparseFlipped: %v", err)
	}
	rhs := Inner(w, dW)

	const tol = 1e-9
	if math.Abs(lhs-mid) > tol {
		t.Errorf("<conv(I,W,s), dO> = %v, <I, conv_inverse(dO,W,s)> = %v", lhs, mid)
	}
	if math.Abs(lhs-rhs) > tol {
		t.Errorf("<conv(I,W,s), dO> = %v, <W, conv_flipped(I,dO,s)> = %v", lhs, rhs)
	}
}

func sequential(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func randomCube(rng *rand.Rand, shape Shape) *Cube {
	data := make([]float64, shape.Vol())
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return NewFromSlice(shape, data)
}

func naiveConv(in, w *Cube, stride Shape) *Cube {
	outShape := outputShape(in.Shape(), w.Shape(), stride)
	out := New(outShape)
	for x := 0; x < outShape[0]; x++ {
		for y := 0; y < outShape[1]; y++ {
			for z := 0; z < outShape[2]; z++ {
				var sum float64
				for a := 0; a < w.Shape()[0]; a++ {
					for b := 0; b < w.Shape()[1]; b++ {
						for c := 0; c < w.Shape()[2]; c++ {
							sum += in.At(x+a*stride[0], y+b*stride[1], z+c*stride[2]) * w.At(a, b, c)
						}
					}
				}
				out.Set(x, y, z, sum)
			}
		}
	}
	return out
}
