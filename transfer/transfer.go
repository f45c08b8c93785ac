// Package transfer is the external transfer-function library referenced
// by §1/§3/§4.5: a small enumerated set of per-channel nonlinearities a
// transfer NodeGroup applies after accumulation, and differentiates on
// backward. Dispatch is by name through a narrow registry, the same shape
// as the teacher's layer-init registry, since this is a closed family
// (§9, "Polymorphism over node and edge variants").
package transfer

import (
	"fmt"
	"math"

	"github.com/openfluke/convgraph/cube"
)

// Function is phi(x, b) plus its derivative with respect to the
// PRE-activation input, expressed in terms of the POST-activation output
// y = phi(x, b) — the form §4.5 requires, since a transfer node only
// retains the post-activation feature cube between forward and backward.
type Function interface {
	Name() string
	// Apply computes phi(x, b) in place over c.
	Apply(c *cube.Cube, b float64)
	// ApplyGrad multiplies grad in place by phi'(output), where output is
	// the post-activation cube produced by the matching Apply call.
	ApplyGrad(grad, output *cube.Cube)
}

var registry = map[string]Function{
	"linear":  linear{},
	"relu":    relu{},
	"sigmoid": sigmoid{},
	"tanh":    tanhFn{},
}

// Get looks up a transfer function by name (the "function" node option of §6).
func Get(name string) (Function, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("transfer: unknown function %q", name)
	}
	return fn, nil
}

// Names lists every registered transfer function, for diagnostics.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// linear implements phi(x,b) = x + b, phi' = 1 (used by S1/S2/S3/S4).
type linear struct{}

func (linear) Name() string { return "linear" }

func (linear) Apply(c *cube.Cube, b float64) {
	c.AddScalarInPlace(b)
}

func (linear) ApplyGrad(grad, output *cube.Cube) {
	// phi' == 1 everywhere; grad is unchanged.
	_ = output
}

// relu implements phi(x,b) = max(0, x+b).
type relu struct{}

func (relu) Name() string { return "relu" }

func (relu) Apply(c *cube.Cube, b float64) {
	data := c.Data()
	for i, v := range data {
		v += b
		if v < 0 {
			v = 0
		}
		data[i] = v
	}
}

func (relu) ApplyGrad(grad, output *cube.Cube) {
	g, y := grad.Data(), output.Data()
	for i := range g {
		if y[i] <= 0 {
			g[i] = 0
		}
	}
}

// sigmoid implements phi(x,b) = 1 / (1 + exp(-(x+b))).
type sigmoid struct{}

func (sigmoid) Name() string { return "sigmoid" }

func (sigmoid) Apply(c *cube.Cube, b float64) {
	data := c.Data()
	for i, v := range data {
		data[i] = 1.0 / (1.0 + math.Exp(-(v + b)))
	}
}

func (sigmoid) ApplyGrad(grad, output *cube.Cube) {
	g, y := grad.Data(), output.Data()
	for i := range g {
		g[i] *= y[i] * (1 - y[i])
	}
}

// tanhFn implements phi(x,b) = tanh(x+b).
type tanhFn struct{}

func (tanhFn) Name() string { return "tanh" }

func (tanhFn) Apply(c *cube.Cube, b float64) {
	data := c.Data()
	for i, v := range data {
		data[i] = math.Tanh(v + b)
	}
}

func (tanhFn) ApplyGrad(grad, output *cube.Cube) {
	g, y := grad.Data(), output.Data()
	for i := range g {
		g[i] *= 1 - y[i]*y[i]
	}
}
