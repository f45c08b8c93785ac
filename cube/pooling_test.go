package cube

import "testing"

func TestPoolMaxBasic(t *testing.T) {
	// 4x1x1 input, window 2x1x1, stride 2x1x1 -> two output cells; cell 0
	// sees inputs 0 and 2, cell 1 sees inputs 1 and 3.
	in := NewFromSlice(Shape{4, 1, 1}, []float64{1, 5, 3, 2})
	out, argmax, err := PoolMax(in, Shape{2, 1, 1}, Shape{2, 1, 1})
	if err != nil {
		t.Fatalf("PoolMax: %v", err)
	}
	if out.At(0, 0, 0) != 3 || out.At(1, 0, 0) != 5 {
		t.Errorf("PoolMax values = %v, %v, want 3, 5", out.At(0, 0, 0), out.At(1, 0, 0))
	}
	if argmax.At(0, 0, 0) != 2 || argmax.At(1, 0, 0) != 1 {
		t.Errorf("argmax = %v, %v, want 2, 1", argmax.At(0, 0, 0), argmax.At(1, 0, 0))
	}
}

func TestPoolMaxTieBreakLexicographicallyFirst(t *testing.T) {
	// Two equal maxima in the same window: the first-scanned offset wins.
	in := NewFromSlice(Shape{3, 1, 1}, []float64{9, 0, 9})
	_, argmax, err := PoolMax(in, Shape{2, 1, 1}, Shape{2, 1, 1})
	if err != nil {
		t.Fatalf("PoolMax: %v", err)
	}
	if argmax.At(0, 0, 0) != 0 {
		t.Errorf("tie-break argmax = %v, want 0 (first element)", argmax.At(0, 0, 0))
	}
}

// TestPoolBackpropConservesGradientMass checks P5.
func TestPoolBackpropConservesGradientMass(t *testing.T) {
	in := NewFromSlice(Shape{4, 1, 1}, []float64{1, 5, 3, 2})
	out, argmax, err := PoolMax(in, Shape{2, 1, 1}, Shape{2, 1, 1})
	if err != nil {
		t.Fatalf("PoolMax: %v", err)
	}
	dOut := Fill(out.Shape(), 1)
	dIn := PoolBackprop(in.Shape(), dOut, argmax)

	if got, want := dIn.Sum(), dOut.Sum(); got != want {
		t.Errorf("gradient mass not conserved: got %v, want %v", got, want)
	}
}

func TestPoolBackpropAccumulatesOnSharedInputCell(t *testing.T) {
	// Overlapping windows (here window 2, stride 1) can map multiple
	// outputs to the same input cell; PoolBackprop must accumulate
	// additively.
	in := NewFromSlice(Shape{3, 1, 1}, []float64{1, 9, 1})
	out, argmax, err := PoolMax(in, Shape{2, 1, 1}, Shape{1, 1, 1})
	if err != nil {
		t.Fatalf("PoolMax: %v", err)
	}
	if out.Shape()[0] != 2 {
		t.Fatalf("expected 2 output cells, got %d", out.Shape()[0])
	}
	dOut := Fill(out.Shape(), 1)
	dIn := PoolBackprop(in.Shape(), dOut, argmax)
	if dIn.At(1, 0, 0) != 2 {
		t.Errorf("expected accumulated gradient 2 at shared argmax cell, got %v", dIn.At(1, 0, 0))
	}
}
