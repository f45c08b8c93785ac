package cube

import "fmt"

// ErrShapeMismatch is returned when a kernel's declared geometry would
// produce a non-positive output shape.
type ErrShapeMismatch struct {
	Op    string
	Input Shape
	Other Shape
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("cube: %s would produce a non-positive output shape (input %v, kernel/window %v)", e.Op, e.Input, e.Other)
}

// outputShape computes the §4.1 output extent for a dilated convolution:
// ix - (wx-1)*sx, and its siblings.
func outputShape(in, w, stride Shape) Shape {
	return Shape{
		in[0] - (w[0]-1)*stride[0],
		in[1] - (w[1]-1)*stride[1],
		in[2] - (w[2]-1)*stride[2],
	}
}

// ConvolveSparse implements §4.1's forward cross-correlation with dilation
// (sparsity) stride s:
//
//	O[x,y,z] = Σ_{a,b,c} I[x+a·sx, y+b·sy, z+c·sz] · W[a,b,c]
//
// stride == (1,1,1) reduces to dense cross-correlation (P2).
func ConvolveSparse(in, w *Cube, stride Shape) (*Cube, error) {
	outShape := outputShape(in.Shape(), w.Shape(), stride)
	if !outShape.Positive() {
		return nil, &ErrShapeMismatch{Op: "ConvolveSparse", Input: in.Shape(), Other: w.Shape()}
	}
	out := New(outShape)
	ws := w.Shape()
	for x := 0; x < outShape[0]; x++ {
		for y := 0; y < outShape[1]; y++ {
			for z := 0; z < outShape[2]; z++ {
				var sum float64
				for a := 0; a < ws[0]; a++ {
					for b := 0; b < ws[1]; b++ {
						for c := 0; c < ws[2]; c++ {
							sum += in.At(x+a*stride[0], y+b*stride[1], z+c*stride[2]) * w.At(a, b, c)
						}
					}
				}
				out.Set(x, y, z, sum)
			}
		}
	}
	return out, nil
}

// ConvolveSparseFlipped computes the weight gradient adjoint of §4.1:
//
//	dW[a,b,c] = Σ_{x,y,z} I[x+a·sx, y+b·sy, z+c·sz] · dO[x,y,z]
//
// Used by Filter.Update via a convolution edge's backward pass.
func ConvolveSparseFlipped(in, dOut *Cube, stride Shape, wShape Shape) (*Cube, error) {
	expected := outputShape(in.Shape(), wShape, stride)
	if expected != dOut.Shape() {
		return nil, &ErrShapeMismatch{Op: "ConvolveSparseFlipped", Input: in.Shape(), Other: wShape}
	}
	dW := New(wShape)
	for a := 0; a < wShape[0]; a++ {
		for b := 0; b < wShape[1]; b++ {
			for c := 0; c < wShape[2]; c++ {
				var sum float64
				for x := 0; x < dOut.Shape()[0]; x++ {
					for y := 0; y < dOut.Shape()[1]; y++ {
						for z := 0; z < dOut.Shape()[2]; z++ {
							sum += in.At(x+a*stride[0], y+b*stride[1], z+c*stride[2]) * dOut.At(x, y, z)
						}
					}
				}
				dW.Set(a, b, c, sum)
			}
		}
	}
	return dW, nil
}

// ConvolveSparseInverse computes the input-gradient adjoint of §4.1:
//
//	dI[p,q,r] = Σ_{a,b,c} W[a,b,c] · dO[p-a·sx, q-b·sy, r-c·sz]
//
// with out-of-range (p,q,r) contributions omitted. inShape is the shape of
// the original input I (and thus of the returned dI).
func ConvolveSparseInverse(dOut, w *Cube, stride Shape, inShape Shape) (*Cube, error) {
	expected := outputShape(inShape, w.Shape(), stride)
	if expected != dOut.Shape() {
		return nil, &ErrShapeMismatch{Op: "ConvolveSparseInverse", Input: inShape, Other: w.Shape()}
	}
	dI := New(inShape)
	ws := w.Shape()
	outShape := dOut.Shape()
	for a := 0; a < ws[0]; a++ {
		for b := 0; b < ws[1]; b++ {
			for c := 0; c < ws[2]; c++ {
				weight := w.At(a, b, c)
				if weight == 0 {
					continue
				}
				for x := 0; x < outShape[0]; x++ {
					p := x + a*stride[0]
					for y := 0; y < outShape[1]; y++ {
						q := y + b*stride[1]
						for z := 0; z < outShape[2]; z++ {
							r := z + c*stride[2]
							dI.Set(p, q, r, dI.At(p, q, r)+weight*dOut.At(x, y, z))
						}
					}
				}
			}
		}
	}
	return dI, nil
}
