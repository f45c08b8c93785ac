package cube

// PoolMax implements §4.2's forward max pooling: for each output cell the
// maximum over the window taps I[x+a·sx, y+b·sy, z+c·sz] is taken (the
// window is dilated by stride, like ConvolveSparse), and an auxiliary cube
// of the same shape records the linear index (into the flattened input) of
// the winning element. Ties break toward the lexicographically smallest
// (a,b,c) offset, i.e. the first element visited in the a,b,c scan order.
func PoolMax(in *Cube, window, stride Shape) (out *Cube, argmax *Cube, err error) {
	outShape := outputShape(in.Shape(), window, stride)
	if !outShape.Positive() {
		return nil, nil, &ErrShapeMismatch{Op: "PoolMax", Input: in.Shape(), Other: window}
	}
	out = New(outShape)
	argmax = New(outShape)
	for x := 0; x < outShape[0]; x++ {
		for y := 0; y < outShape[1]; y++ {
			for z := 0; z < outShape[2]; z++ {
				best := in.At(x, y, z)
				bestIdx := in.index(x, y, z)
				for a := 0; a < window[0]; a++ {
					for b := 0; b < window[1]; b++ {
						for c := 0; c < window[2]; c++ {
							if a == 0 && b == 0 && c == 0 {
								continue
							}
							ix, iy, iz := x+a*stride[0], y+b*stride[1], z+c*stride[2]
							v := in.At(ix, iy, iz)
							if v > best {
								best = v
								bestIdx = in.index(ix, iy, iz)
							}
						}
					}
				}
				out.Set(x, y, z, best)
				argmax.Set(x, y, z, float64(bestIdx))
			}
		}
	}
	return out, argmax, nil
}

// PoolBackprop implements §4.2's pooling adjoint: dI is zero everywhere
// except that each output gradient cell is scattered back to the input
// location recorded by argmax, with additive accumulation where multiple
// outputs map to the same input cell.
func PoolBackprop(inShape Shape, dOut, argmax *Cube) *Cube {
	dIn := New(inShape)
	for i, g := range dOut.Data() {
		idx := int(argmax.Data()[i])
		dIn.data[idx] += g
	}
	return dIn
}
