// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package linktest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

const (
	// Variance returned when the observations carry too little power to need a root
	fallbackQ = 1e-4
	// Target ratio of explained to expected observation power
	powerRatio  = 1.2
	rootMaxIter = 100
	rootTol     = 1e-10
)

// InitialQ returns a common starting innovation variance for every source.
// It solves sum_k c_k / (1 + x e_k)^2 = 1.2 n T for x, where e_k are the
// eigenvalues of F F' and c_k the power of the observations projected on the
// matching eigenvectors. When the left side is already below the target at
// x = 0 the fallback 1e-4 is returned.
// Input:
//   - y: observations (samples x channels)
//   - f: mixing matrix (channels x sources)
//
// Returns:
//   - the initial variance
//   - ErrNotConverged if no root could be bracketed
func InitialQ(y, f *mat.Dense) (float64, error) {
	t, ny := y.Dims()
	if fr, _ := f.Dims(); fr != ny {
		return 0, fmt.Errorf("%w: y has %d channels, F has %d rows", ssm.ErrDimension, ny, fr)
	}

	// 1. Spectrum of F F'
	var ff mat.SymDense
	ff.SymOuterK(1, f)
	var eig mat.EigenSym
	if !eig.Factorize(&ff, true) {
		return 0, fmt.Errorf("%w: eigendecomposition of F F'", ssm.ErrNotConverged)
	}
	e := eig.Values(nil)
	var u mat.Dense
	eig.VectorsTo(&u)

	// 2. Projected power per eigenvector
	var proj mat.Dense
	proj.Mul(y, &u)
	c := make([]float64, ny)
	for k := 0; k < ny; k++ {
		col := mat.Col(nil, k, &proj)
		c[k] = floats.Dot(col, col)
	}

	target := powerRatio * float64(ny) * float64(t)
	fun := func(x float64) float64 {
		s := 0.0
		for k := range c {
			d := 1 + x*e[k]
			s += c[k] / (d * d)
		}
		return s - target
	}
	fprime := func(x float64) float64 {
		s := 0.0
		for k := range c {
			d := 1 + x*e[k]
			s += c[k] * e[k] / (d * d * d)
		}
		return -2 * s
	}

	if fun(0) <= 0 {
		return fallbackQ, nil
	}
	return safeguardedNewton(fun, fprime, 1)
}

// safeguardedNewton finds the root of a decreasing function with f(0) > 0.
// Newton steps that leave the bracket are replaced by bisection.
func safeguardedNewton(fun, fprime func(float64) float64, x0 float64) (float64, error) {
	lo, hi := 0.0, x0
	for k := 0; fun(hi) > 0; k++ {
		if k == 60 {
			return 0, fmt.Errorf("%w: no sign change up to %g", ssm.ErrNotConverged, hi)
		}
		lo, hi = hi, 2*hi
	}

	x := hi
	for iter := 0; iter < rootMaxIter; iter++ {
		fx := fun(x)
		if fx == 0 {
			return x, nil
		}
		if fx > 0 {
			lo = x
		} else {
			hi = x
		}
		next := x - fx/fprime(x)
		if math.IsNaN(next) || next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-x) <= rootTol*math.Max(1, math.Abs(x)) {
			return next, nil
		}
		x = next
	}
	return 0, fmt.Errorf("%w: root search after %d iterations", ssm.ErrNotConverged, rootMaxIter)
}
