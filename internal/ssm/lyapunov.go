// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	lyapunovMaxIter = 60
	lyapunovTol     = 1e-14
)

// SolveLyapunov solves the discrete Lyapunov equation X = a X a' + q by
// doubling: X_{k+1} = X_k + A_k X_k A_k', A_{k+1} = A_k A_k.
// Input:
//   - a: square matrix whose spectral radius is below one
//   - q: symmetric right-hand side with the same dimension
//
// Returns:
//   - the symmetric solution X
//   - ErrNotConverged if the series did not settle (a is not stable)
func SolveLyapunov(a mat.Matrix, q mat.Symmetric) (*mat.SymDense, error) {
	n, c := a.Dims()
	if n != c || q.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: lyapunov a is %dx%d, q is %d", ErrDimension, n, c, q.SymmetricDim())
	}

	x := mat.DenseCopyOf(q)
	ak := mat.DenseCopyOf(a)

	for k := 0; k < lyapunovMaxIter; k++ {
		var tmp, step mat.Dense
		tmp.Mul(ak, x)
		step.Mul(&tmp, ak.T())
		x.Add(x, &step)

		var next mat.Dense
		next.Mul(ak, ak)
		ak = &next

		if !allFinite(x) {
			return nil, fmt.Errorf("%w: lyapunov iterate is not finite", ErrNotConverged)
		}
		if mat.Norm(&step, 2) <= lyapunovTol*mat.Norm(x, 2) {
			return symmetrize(x), nil
		}
	}
	return nil, fmt.Errorf("%w: lyapunov after %d doublings", ErrNotConverged, lyapunovMaxIter)
}
