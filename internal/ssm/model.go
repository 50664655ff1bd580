// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package ssm

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidQ is returned when an innovation variance is not strictly positive.
var ErrInvalidQ = errors.New("ssm: innovation variance must be strictly positive")

// Model is a latent VAR(p) observed through a mixing matrix.
//
// The lag coefficients are stored stacked: A is m x (m*p) and column k*m + j
// holds the effect of source j at lag k+1. Q is the diagonal of the
// innovation covariance.
type Model struct {
	A     *mat.Dense
	F     *mat.Dense
	Q     []float64
	R     *mat.SymDense
	Order int
}

// Sources returns the number of latent sources m.
func (md Model) Sources() int {
	return len(md.Q)
}

// Validate checks the shapes of the model and that Q is strictly positive.
func (md Model) Validate() error {
	if md.A == nil || md.F == nil || md.R == nil {
		return fmt.Errorf("%w: model matrices must all be set", ErrDimension)
	}
	m := len(md.Q)
	if md.Order < 1 || m == 0 {
		return fmt.Errorf("%w: order %d with %d sources", ErrDimension, md.Order, m)
	}
	ar, ac := md.A.Dims()
	if ar != m || ac != m*md.Order {
		return fmt.Errorf("%w: A is %dx%d, want %dx%d", ErrDimension, ar, ac, m, m*md.Order)
	}
	ny, fc := md.F.Dims()
	if fc != m {
		return fmt.Errorf("%w: F has %d columns, want %d", ErrDimension, fc, m)
	}
	if md.R.SymmetricDim() != ny {
		return fmt.Errorf("%w: R is %d, want %d", ErrDimension, md.R.SymmetricDim(), ny)
	}
	for i, v := range md.Q {
		if !(v > 0) {
			return fmt.Errorf("%w: q[%d] = %g", ErrInvalidQ, i, v)
		}
	}
	return nil
}

// Companion builds the first-order state-space system whose state stacks the
// last p source vectors [x_t, x_{t-1}, ..., x_{t-p+1}].
// Returns:
//   - System with A (mp x mp), F padded with zeros (ny x mp),
//     Q holding diag(q) in its leading block and R unchanged
//   - error if the model is malformed
func (md Model) Companion() (System, error) {
	if err := md.Validate(); err != nil {
		return System{}, err
	}
	m, p := md.Sources(), md.Order
	dx := m * p
	ny, _ := md.F.Dims()

	// 1. Transition: stacked coefficients on top, shifted identity below.
	a := mat.NewDense(dx, dx, nil)
	a.Slice(0, m, 0, dx).(*mat.Dense).Copy(md.A)
	for i := m; i < dx; i++ {
		a.Set(i, i-m, 1)
	}

	// 2. Mixing only sees the current sources.
	f := mat.NewDense(ny, dx, nil)
	f.Slice(0, ny, 0, m).(*mat.Dense).Copy(md.F)

	// 3. Innovations only drive the current sources.
	q := mat.NewSymDense(dx, nil)
	for i, v := range md.Q {
		q.SetSym(i, i, v)
	}

	return System{A: a, F: f, Q: q, R: md.R}, nil
}

// Clone returns a deep copy of the model. F and R are shared since no
// component mutates them.
func (md Model) Clone() Model {
	out := md
	out.A = mat.DenseCopyOf(md.A)
	out.Q = append([]float64(nil), md.Q...)
	return out
}
