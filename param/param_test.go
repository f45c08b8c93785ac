package param

import (
	"testing"

	"github.com/openfluke/convgraph/cube"
)

// TestFilterUpdateZeroEtaIsIdentity checks P6 for Filter.
func TestFilterUpdateZeroEtaIsIdentity(t *testing.T) {
	w := cube.Fill(cube.Shape{2, 2, 2}, 1)
	f := NewFilter(w, 0, 0.9, 0.1)
	f.V = cube.Fill(w.Shape(), 0.5)

	wBefore := f.W.Clone()
	vBefore := f.V.Clone()

	dW := cube.Fill(w.Shape(), 3)
	f.Update(dW)

	if !f.W.Equal(wBefore) {
		t.Errorf("W changed despite eta=0: %v vs %v", f.W.Data(), wBefore.Data())
	}
	if !f.V.Equal(vBefore) {
		t.Errorf("V changed despite eta=0: %v vs %v", f.V.Data(), vBefore.Data())
	}
}

// TestBiasUpdateZeroEtaIsIdentity checks P6 for Bias.
func TestBiasUpdateZeroEtaIsIdentity(t *testing.T) {
	b := NewBias(1.5, 0, 0.9, 0.1)
	b.V = 0.25

	b.Update(10)

	if b.B != 1.5 || b.V != 0.25 {
		t.Errorf("Bias changed despite eta=0: b=%v v=%v", b.B, b.V)
	}
}

// TestBiasUpdatePlainSGD reproduces S1's bias update: linear transfer,
// eta=0.1, mu=0, lambda=0, gradient sum 28 over an (2,2,2) cube.
func TestBiasUpdatePlainSGD(t *testing.T) {
	b := NewBias(0, 0.1, 0, 0)
	b.Update(28) // 0+1+2+3+4+5+6+7 == 28
	if got, want := b.B, -2.8; !almostEqual(got, want) {
		t.Errorf("bias = %v, want %v", got, want)
	}
}

// TestFilterUpdatePlainSGD reproduces S2's weight update: W starts at 1
// everywhere, gradient dW[x,y,z] = x+2y+4z (the cube itself), eta=0.1.
func TestFilterUpdatePlainSGD(t *testing.T) {
	w := cube.Fill(cube.Shape{2, 2, 2}, 1)
	f := NewFilter(w, 0.1, 0, 0)

	dW := cube.New(cube.Shape{2, 2, 2})
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				dW.Set(x, y, z, float64(x+2*y+4*z))
			}
		}
	}
	f.Update(dW)

	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				want := 1 - 0.1*float64(x+2*y+4*z)
				if got := f.W.At(x, y, z); !almostEqual(got, want) {
					t.Errorf("W[%d,%d,%d] = %v, want %v", x, y, z, got, want)
				}
			}
		}
	}
}

func almostEqual(a, b float64) bool {
	const tol = 1e-9
	d := a - b
	return d > -tol && d < tol
}
