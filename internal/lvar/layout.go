// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Unravel splits stacked coefficients (m x m*p) into the per-lag matrices
// A_1, ..., A_p (each m x m).
func Unravel(a mat.Matrix, p int) []*mat.Dense {
	m, _ := a.Dims()
	out := make([]*mat.Dense, p)
	for k := 0; k < p; k++ {
		ak := mat.NewDense(m, m, nil)
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				ak.Set(i, j, a.At(i, k*m+j))
			}
		}
		out[k] = ak
	}
	return out
}

// Ravel stacks per-lag coefficient matrices into a single m x m*p matrix.
func Ravel(lags []*mat.Dense) *mat.Dense {
	p := len(lags)
	if p == 0 {
		return nil
	}
	m, _ := lags[0].Dims()
	out := mat.NewDense(m, m*p, nil)
	for k, ak := range lags {
		out.Slice(0, m, k*m, (k+1)*m).(*mat.Dense).Copy(ak)
	}
	return out
}

// NormOne returns the sum of absolute coefficients.
func NormOne(a mat.Matrix) float64 {
	r, c := a.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += math.Abs(a.At(i, j))
		}
	}
	return s
}

// nonZero counts coefficients whose magnitude exceeds 1e-15.
func nonZero(a mat.Matrix) int {
	r, c := a.Dims()
	n := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.Abs(a.At(i, j)) > 1e-15 {
				n++
			}
		}
	}
	return n
}
