// Package cube implements the fixed-rank 3-D dense array that every
// feature map, filter, and gradient in the dataflow graph is built from.
package cube

import "fmt"

// Shape is the 3-D extent of a Cube, in (x, y, z) order.
type Shape [3]int

// Vol returns the number of elements a cube of this shape holds.
func (s Shape) Vol() int {
	return s[0] * s[1] * s[2]
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s[0], s[1], s[2])
}

// Positive reports whether every component of s is strictly positive.
func (s Shape) Positive() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// Add returns the component-wise sum of two shapes.
func (s Shape) Add(o Shape) Shape {
	return Shape{s[0] + o[0], s[1] + o[1], s[2] + o[2]}
}

// Sub returns the component-wise difference s - o.
func (s Shape) Sub(o Shape) Shape {
	return Shape{s[0] - o[0], s[1] - o[1], s[2] - o[2]}
}

// Mul returns the component-wise product of two shapes.
func (s Shape) Mul(o Shape) Shape {
	return Shape{s[0] * o[0], s[1] * o[1], s[2] * o[2]}
}

// One is the identity shape (1,1,1), used as the seed stride/FOV.
var One = Shape{1, 1, 1}

// Cube is a dense rank-3 array of float64 values in x-major, then y, then z
// linear layout: index(x,y,z) = x*sy*sz + y*sz + z.
type Cube struct {
	shape Shape
	data  []float64
}

// New allocates a zero-filled cube of the given shape. Every component of
// shape must be positive.
func New(shape Shape) *Cube {
	if !shape.Positive() {
		panic(fmt.Sprintf("cube: non-positive shape %v", shape))
	}
	return &Cube{shape: shape, data: make([]float64, shape.Vol())}
}

// NewFromSlice wraps data (already in native linear layout) as a cube of
// the given shape. data must have exactly shape.Vol() elements.
func NewFromSlice(shape Shape, data []float64) *Cube {
	if !shape.Positive() {
		panic(fmt.Sprintf("cube: non-positive shape %v", shape))
	}
	if len(data) != shape.Vol() {
		panic(fmt.Sprintf("cube: data length %d does not match shape %v", len(data), shape))
	}
	return &Cube{shape: shape, data: data}
}

// Fill allocates a cube of the given shape with every element set to v.
func Fill(shape Shape, v float64) *Cube {
	c := New(shape)
	for i := range c.data {
		c.data[i] = v
	}
	return c
}

// Shape returns the cube's 3-D extent.
func (c *Cube) Shape() Shape { return c.shape }

// Data returns the cube's backing slice in native linear layout. Callers
// that mutate the result must own the cube exclusively.
func (c *Cube) Data() []float64 { return c.data }

func (c *Cube) index(x, y, z int) int {
	sy, sz := c.shape[1], c.shape[2]
	return x*sy*sz + y*sz + z
}

// At returns the element at (x, y, z).
func (c *Cube) At(x, y, z int) float64 {
	return c.data[c.index(x, y, z)]
}

// Set assigns the element at (x, y, z).
func (c *Cube) Set(x, y, z int, v float64) {
	c.data[c.index(x, y, z)] = v
}

// Clone returns a deep copy, used wherever the accumulation protocol
// requires a cube that downstream edges may not alias.
func (c *Cube) Clone() *Cube {
	out := make([]float64, len(c.data))
	copy(out, c.data)
	return &Cube{shape: c.shape, data: out}
}

// AddInPlace adds o into c element-wise. Panics if the shapes differ.
func (c *Cube) AddInPlace(o *Cube) {
	if c.shape != o.shape {
		panic(fmt.Sprintf("cube: shape mismatch in AddInPlace %v vs %v", c.shape, o.shape))
	}
	for i, v := range o.data {
		c.data[i] += v
	}
}

// Equal reports whether two cubes have the same shape and element values.
func (c *Cube) Equal(o *Cube) bool {
	if c.shape != o.shape {
		return false
	}
	for i, v := range c.data {
		if o.data[i] != v {
			return false
		}
	}
	return true
}

// Sum returns the sum of all elements, used by Bias.Update's gradient
// reduction (§4.5).
func (c *Cube) Sum() float64 {
	var s float64
	for _, v := range c.data {
		s += v
	}
	return s
}

// ScaleInPlace multiplies every element by k.
func (c *Cube) ScaleInPlace(k float64) {
	for i := range c.data {
		c.data[i] *= k
	}
}

// AddScalarInPlace adds k to every element, used by transfer nodes to
// apply a per-channel bias in place (§3, Transfer NodeGroup).
func (c *Cube) AddScalarInPlace(k float64) {
	for i := range c.data {
		c.data[i] += k
	}
}

// MulElemInPlace multiplies c element-wise by o, used by the transfer
// node's backward hook (gradient *= phi'(feature)).
func (c *Cube) MulElemInPlace(o *Cube) {
	if c.shape != o.shape {
		panic(fmt.Sprintf("cube: shape mismatch in MulElemInPlace %v vs %v", c.shape, o.shape))
	}
	for i := range c.data {
		c.data[i] *= o.data[i]
	}
}

// Inner returns the sum of element-wise products of two equally-shaped
// cubes, the inner product used by property test P4 (adjoint identity).
func Inner(a, b *Cube) float64 {
	if a.shape != b.shape {
		panic(fmt.Sprintf("cube: shape mismatch in Inner %v vs %v", a.shape, b.shape))
	}
	var s float64
	for i, v := range a.data {
		s += v * b.data[i]
	}
	return s
}
