package cube

import "testing"

func TestNewAndAt(t *testing.T) {
	c := New(Shape{2, 2, 2})
	if c.Shape().Vol() != 8 {
		t.Errorf("expected volume 8, got %d", c.Shape().Vol())
	}
	c.Set(1, 1, 1, 5)
	if c.At(1, 1, 1) != 5 {
		t.Errorf("expected 5 at (1,1,1), got %v", c.At(1, 1, 1))
	}
}

func TestNewFromSliceLinearLayout(t *testing.T) {
	// x-major, then y, then z: index(x,y,z) = x*sy*sz + y*sz + z
	data := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	c := NewFromSlice(Shape{2, 2, 2}, data)
	if c.At(0, 0, 0) != 0 || c.At(1, 1, 1) != 7 {
		t.Errorf("unexpected linear layout: %v, %v", c.At(0, 0, 0), c.At(1, 1, 1))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := Fill(Shape{1, 1, 1}, 3)
	clone := c.Clone()
	c.Set(0, 0, 0, 100)
	if clone.At(0, 0, 0) != 3 {
		t.Errorf("clone was modified when original changed")
	}
}

func TestAddInPlace(t *testing.T) {
	a := Fill(Shape{2, 1, 1}, 1)
	b := Fill(Shape{2, 1, 1}, 2)
	a.AddInPlace(b)
	if a.At(0, 0, 0) != 3 || a.At(1, 0, 0) != 3 {
		t.Errorf("expected all elements to be 3, got %v", a.Data())
	}
}

func TestSum(t *testing.T) {
	data := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	c := NewFromSlice(Shape{2, 2, 2}, data)
	if got, want := c.Sum(), 28.0; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestInner(t *testing.T) {
	a := NewFromSlice(Shape{1, 1, 2}, []float64{1, 2})
	b := NewFromSlice(Shape{1, 1, 2}, []float64{3, 4})
	if got, want := Inner(a, b), 11.0; got != want {
		t.Errorf("Inner() = %v, want %v", got, want)
	}
}

func TestShapePositiveAndArithmetic(t *testing.T) {
	s := Shape{3, 3, 3}
	if !s.Positive() {
		t.Error("expected (3,3,3) to be positive")
	}
	if got := s.Sub(Shape{1, 1, 1}); got != (Shape{2, 2, 2}) {
		t.Errorf("Sub() = %v, want (2,2,2)", got)
	}
	zero := Shape{0, 1, 1}
	if zero.Positive() {
		t.Error("expected (0,1,1) to be non-positive")
	}
}
