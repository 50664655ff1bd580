// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

// Bias returns the sample-path bias of the deviance for the fitted model on
// y: the sum over target sources of l' H^-1 l, where l is the gradient and H
// the Hessian of that source's conditional log-likelihood in its free
// coefficients, evaluated on the smoothed source means. Masked coefficients
// are left out of both. The value is non-positive.
func (ft *Fitted) Bias(y *mat.Dense) (float64, error) {
	sys, err := ft.Model.Companion()
	if err != nil {
		return 0, err
	}
	sm, err := ssm.Smooth(y, sys, nil, ft.opts)
	if err != nil {
		return 0, err
	}
	m, p := ft.Model.Sources(), ft.Model.Order
	t, _ := sm.X.Dims()
	return samplePathBias(sm.X.Slice(0, t, 0, m), ft.Model.A, ft.Model.Q, ft.Mask, p)
}

// samplePathBias evaluates the bias term on a source path x (samples x m).
func samplePathBias(x mat.Matrix, a *mat.Dense, q []float64, mk Mask, p int) (float64, error) {
	t, m := x.Dims()
	n := t - p
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d samples for order %d", ssm.ErrDimension, t, p)
	}

	// 1. Lagged design: column block k holds x_{t-k-1}.
	xd := mat.DenseCopyOf(x)
	cx := mat.NewDense(n, m*p, nil)
	for k := 0; k < p; k++ {
		cx.Slice(0, n, k*m, (k+1)*m).(*mat.Dense).Copy(xd.Slice(p-1-k, t-1-k, 0, m))
	}
	var gram mat.SymDense
	gram.SymOuterK(1, cx.T())

	bias := 0.0
	for i := 0; i < m; i++ {
		free := mk.Free(i)
		if len(free) == 0 {
			continue
		}

		// 2. Gradient on the free coordinates.
		var fit mat.VecDense
		fit.MulVec(cx, a.RowView(i))
		resid := mat.NewVecDense(n, nil)
		for s := 0; s < n; s++ {
			resid.SetVec(s, xd.At(s+p, i)-fit.AtVec(s))
		}
		var full mat.VecDense
		full.MulVec(cx.T(), resid)

		ldot := mat.NewVecDense(len(free), nil)
		h := mat.NewSymDense(len(free), nil)
		for u, ju := range free {
			ldot.SetVec(u, full.AtVec(ju)/q[i])
			for v := u; v < len(free); v++ {
				h.SetSym(u, v, gram.At(ju, free[v])/q[i])
			}
		}

		// 3. l' H^-1 l with an eigenvalue fallback.
		bias -= quadInverse(h, ldot)
	}
	return bias, nil
}

// quadInverse returns l' H^-1 l, dropping non-positive eigenvalues of H when
// it has no Cholesky factor.
func quadInverse(h *mat.SymDense, l *mat.VecDense) float64 {
	var chol mat.Cholesky
	if chol.Factorize(h) {
		var sol mat.VecDense
		if err := chol.SolveVecTo(&sol, l); err == nil {
			return mat.Dot(l, &sol)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(h, true) {
		return 0
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var proj mat.VecDense
	proj.MulVec(vecs.T(), l)
	out := 0.0
	for k, e := range vals {
		if e > 0 {
			out += proj.AtVec(k) * proj.AtVec(k) / e
		}
	}
	return out
}
