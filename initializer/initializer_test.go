package initializer

import (
	"math/rand"
	"testing"
)

func TestZeroFill(t *testing.T) {
	fn, err := Get("zero")
	if err != nil {
		t.Fatalf("Get(zero): %v", err)
	}
	dst := []float64{1, 2, 3}
	fn(dst, nil)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestUniformFillBounded(t *testing.T) {
	fn, _ := Get("uniform")
	dst := make([]float64, 16)
	rng := rand.New(rand.NewSource(1))
	fn(dst, rng)
	bound := 1.0 / 4.0 // 1/sqrt(16)
	for i, v := range dst {
		if v < -bound || v > bound {
			t.Errorf("dst[%d] = %v out of bound ±%v", i, v, bound)
		}
	}
}

func TestGetUnknownInitializer(t *testing.T) {
	if _, err := Get("nope"); err == nil {
		t.Error("expected error for unknown initializer")
	}
}
