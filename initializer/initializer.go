// Package initializer is the external initializer library referenced by
// §1/§6: a small enumerated set of parameter fills, dispatched by name.
package initializer

import (
	"fmt"
	"math"
	"math/rand"
)

// Func fills dst with n values, in place.
type Func func(dst []float64, rng *rand.Rand)

var registry = map[string]Func{
	"zero":     zeroFill,
	"uniform":  uniformFill,
	"gaussian": gaussianFill,
}

// Get looks up an initializer by name (the "init" node/edge option of §6).
func Get(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("initializer: unknown initializer %q", name)
	}
	return fn, nil
}

func zeroFill(dst []float64, _ *rand.Rand) {
	for i := range dst {
		dst[i] = 0
	}
}

// uniformFill draws from U(-1/sqrt(n), 1/sqrt(n)), a fan-in-scaled
// uniform fill in the spirit of the teacher's He-initialization scaling
// in nn/cnn.go's InitConv2DLayer.
func uniformFill(dst []float64, rng *rand.Rand) {
	bound := 1.0
	if n := len(dst); n > 0 {
		bound = 1.0 / math.Sqrt(float64(n))
	}
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * bound
	}
}

// gaussianFill draws from N(0, 1/sqrt(n)), matching the stddev shape of
// nn/cnn.go's He-initialization (stddev = sqrt(2/fan_in)), scaled down to
// a generic fan-in-only rule since this engine has no activation-specific
// gain parameter.
func gaussianFill(dst []float64, rng *rand.Rand) {
	stddev := 1.0
	if n := len(dst); n > 0 {
		stddev = 1.0 / math.Sqrt(float64(n))
	}
	for i := range dst {
		dst[i] = rng.NormFloat64() * stddev
	}
}
