package transfer

import (
	"testing"

	"github.com/openfluke/convgraph/cube"
)

func TestLinearApplyAndGrad(t *testing.T) {
	fn, err := Get("linear")
	if err != nil {
		t.Fatalf("Get(linear): %v", err)
	}
	c := cube.NewFromSlice(cube.Shape{1, 1, 2}, []float64{1, 2})
	fn.Apply(c, 3)
	if c.At(0, 0, 0) != 4 || c.At(0, 0, 1) != 5 {
		t.Errorf("linear Apply = %v, want [4 5]", c.Data())
	}

	grad := cube.Fill(c.Shape(), 10)
	fn.ApplyGrad(grad, c)
	if grad.At(0, 0, 0) != 10 {
		t.Errorf("linear ApplyGrad changed gradient: %v", grad.Data())
	}
}

func TestReluZerosNegativeOutputs(t *testing.T) {
	fn, _ := Get("relu")
	c := cube.NewFromSlice(cube.Shape{1, 1, 2}, []float64{-5, 5})
	fn.Apply(c, 0)
	if c.At(0, 0, 0) != 0 || c.At(0, 0, 1) != 5 {
		t.Errorf("relu Apply = %v, want [0 5]", c.Data())
	}

	grad := cube.Fill(c.Shape(), 1)
	fn.ApplyGrad(grad, c)
	if grad.At(0, 0, 0) != 0 || grad.At(0, 0, 1) != 1 {
		t.Errorf("relu ApplyGrad = %v, want [0 1]", grad.Data())
	}
}

func TestSigmoidDerivativeFromOutput(t *testing.T) {
	fn, _ := Get("sigmoid")
	c := cube.NewFromSlice(cube.Shape{1, 1, 1}, []float64{0})
	fn.Apply(c, 0)
	if got, want := c.At(0, 0, 0), 0.5; got != want {
		t.Fatalf("sigmoid(0) = %v, want %v", got, want)
	}
	grad := cube.Fill(c.Shape(), 1)
	fn.ApplyGrad(grad, c)
	if got, want := grad.At(0, 0, 0), 0.25; got != want {
		t.Errorf("sigmoid'(0) via output = %v, want %v", got, want)
	}
}

func TestGetUnknownFunction(t *testing.T) {
	if _, err := Get("does-not-exist"); err == nil {
		t.Error("expected error for unknown transfer function")
	}
}
