// Package param implements the learnable parameter objects of §3: Filter
// (a convolution weight cube) and Bias (a per-channel scalar), each with
// the §4.3 SGD-with-momentum-and-weight-decay update rule.
package param

import "github.com/openfluke/convgraph/cube"

// Filter holds a weight cube W, a momentum cube V of the same shape, and
// the optimizer hyperparameters eta (learning rate), mu (momentum
// factor), and lambda (L2 weight-decay coefficient). shape(W) == shape(V)
// is maintained for the filter's entire lifetime.
type Filter struct {
	W, V            *cube.Cube
	Eta, Mu, Lambda float64
}

// NewFilter creates a filter around the weight cube w (used as is, not
// copied) with a zero momentum cube, matching the original's filter
// constructor (momentum always starts at zero).
func NewFilter(w *cube.Cube, eta, mu, lambda float64) *Filter {
	return &Filter{
		W:      w,
		V:      cube.New(w.Shape()),
		Eta:    eta,
		Mu:     mu,
		Lambda: lambda,
	}
}

// Update applies the §4.3 rule in place:
//
//	V ← mu·V − eta·(dW + lambda·W)
//	W ← W + V
func (f *Filter) Update(dW *cube.Cube) {
	next := cube.New(f.W.Shape())
	wData, vData, dData, nData := f.W.Data(), f.V.Data(), dW.Data(), next.Data()
	for i := range nData {
		nData[i] = f.Mu*vData[i] - f.Eta*(dData[i]+f.Lambda*wData[i])
	}
	f.V = next
	f.W.AddInPlace(f.V)
}

// SetEta, SetMomentum, and SetWeightDecay implement the graph-wide
// broadcast setters of §6 (set_eta/set_momentum/set_weight_decay).
func (f *Filter) SetEta(eta float64)            { f.Eta = eta }
func (f *Filter) SetMomentum(mu float64)        { f.Mu = mu }
func (f *Filter) SetWeightDecay(lambda float64) { f.Lambda = lambda }
