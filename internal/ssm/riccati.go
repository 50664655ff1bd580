// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package ssm

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

const (
	doublingMaxIter   = 100
	doublingTol       = 1e-13
	fixedPointMaxIter = 20000
	fixedPointTol     = 1e-11
)

// riccatiAttempt is one row of the Riccati decision table: a solver variant
// and the condition on the previous failure under which it is tried.
type riccatiAttempt struct {
	name  string
	when  func(prev error) bool
	solve func(sys System) (*mat.SymDense, error)
}

// riccatiChain is tried top to bottom. The first row always runs, later rows
// only run when the most recent failure matches their trigger.
var riccatiChain = []riccatiAttempt{
	{
		name:  "doubling",
		when:  func(error) bool { return true },
		solve: func(sys System) (*mat.SymDense, error) { return solveDoubling(sys, false) },
	},
	{
		name:  "doubling-balanced",
		when:  func(prev error) bool { return errors.Is(prev, ErrSingular) },
		solve: func(sys System) (*mat.SymDense, error) { return solveDoubling(sys, true) },
	},
	{
		name:  "iteration-stabilizing",
		when:  func(prev error) bool { return prev != nil },
		solve: func(sys System) (*mat.SymDense, error) { return solveFixedPoint(sys, true) },
	},
	{
		name: "iteration",
		when: func(prev error) bool {
			return errors.Is(prev, ErrNotStabilizing) || errors.Is(prev, ErrNotConverged)
		},
		solve: func(sys System) (*mat.SymDense, error) { return solveFixedPoint(sys, false) },
	},
}

// SolveRiccati returns the steady-state one-step prediction error covariance P
// solving the discrete algebraic Riccati equation
//
//	P = A P A' - A P F' (F P F' + R)^-1 F P A' + Q
//
// It walks the solver decision table and returns ErrRiccati (wrapping every
// individual failure) if no variant produced a finite solution.
func SolveRiccati(sys System) (*mat.SymDense, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}

	var (
		prev error
		errs []error
	)
	for i, attempt := range riccatiChain {
		if i > 0 && !attempt.when(prev) {
			continue
		}
		p, err := attempt.solve(sys)
		if err == nil {
			return p, nil
		}
		prev = err
		errs = append(errs, fmt.Errorf("%s: %w", attempt.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrRiccati, errors.Join(errs...))
}

// solveDoubling runs the structured doubling algorithm on the control form of
// the equation (A_c = A', B_c = F'). With balance set, the state is first
// rescaled by a diagonal matrix D so that Q and F'R^-1F have matching
// diagonals, and the solution is mapped back as D X D.
func solveDoubling(sys System, balance bool) (*mat.SymDense, error) {
	dx, _ := sys.Dims()

	// G = F' R^-1 F
	var chol mat.Cholesky
	if !chol.Factorize(sys.R) {
		return nil, fmt.Errorf("%w: R has no cholesky factor", ErrSingular)
	}
	var rinvF mat.Dense
	if err := chol.SolveTo(&rinvF, sys.F); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	g := &mat.Dense{}
	g.Mul(sys.F.T(), &rinvF)

	a := mat.DenseCopyOf(sys.A.T())
	h := mat.DenseCopyOf(sys.Q)

	// Diagonal balancing: z = D^-1 x
	var d []float64
	if balance {
		d = make([]float64, dx)
		for i := 0; i < dx; i++ {
			qi, gi := h.At(i, i), g.At(i, i)
			d[i] = 1
			if qi > 0 && gi > 0 {
				d[i] = math.Pow(qi/gi, 0.25)
			}
		}
		for i := 0; i < dx; i++ {
			for j := 0; j < dx; j++ {
				// A_c = (D^-1 A D)' = D A' D^-1
				a.Set(i, j, a.At(i, j)*d[i]/d[j])
				h.Set(i, j, h.At(i, j)/(d[i]*d[j]))
				g.Set(i, j, g.At(i, j)*d[i]*d[j])
			}
		}
	}

	eye := identity(dx)
	for k := 0; k < doublingMaxIter; k++ {
		// W = I + G H
		var w mat.Dense
		w.Mul(g, h)
		w.Add(&w, eye)

		var lu mat.LU
		lu.Factorize(&w)
		if lu.Det() == 0 || math.IsInf(lu.Cond(), 1) {
			return nil, fmt.Errorf("%w: doubling step %d", ErrSingular, k)
		}
		var wa, wg mat.Dense
		if err := lu.SolveTo(&wa, false, a); err != nil {
			return nil, fmt.Errorf("%w: doubling step %d: %v", ErrSingular, k, err)
		}
		if err := lu.SolveTo(&wg, false, g); err != nil {
			return nil, fmt.Errorf("%w: doubling step %d: %v", ErrSingular, k, err)
		}

		// H_{k+1} = H + A' H W^-1 A
		var tmp, hNext mat.Dense
		tmp.Mul(h, &wa)
		hNext.Mul(a.T(), &tmp)
		hNext.Add(&hNext, h)

		// G_{k+1} = G + A W^-1 G A'
		var gNext mat.Dense
		tmp.Reset()
		tmp.Mul(&wg, a.T())
		gNext.Mul(a, &tmp)
		gNext.Add(&gNext, g)

		// A_{k+1} = A W^-1 A
		var aNext mat.Dense
		aNext.Mul(a, &wa)

		if !allFinite(&hNext) || !allFinite(&aNext) {
			return nil, fmt.Errorf("%w: non-finite iterate at step %d", ErrNotConverged, k)
		}

		change := relDiff(&hNext, h)
		h = mat.DenseCopyOf(symmetrize(&hNext))
		g = mat.DenseCopyOf(symmetrize(&gNext))
		a = &aNext

		if change < doublingTol {
			if balance {
				for i := 0; i < dx; i++ {
					for j := 0; j < dx; j++ {
						h.Set(i, j, h.At(i, j)*d[i]*d[j])
					}
				}
			}
			return symmetrize(h), nil
		}
	}
	return nil, fmt.Errorf("%w: doubling after %d steps", ErrNotConverged, doublingMaxIter)
}

// solveFixedPoint iterates the Riccati recursion from P_0 = Q until it
// settles. With stabilizing set, the closed-loop matrix A(I - KF) must have
// spectral radius below one for the solution to be accepted.
func solveFixedPoint(sys System, stabilizing bool) (*mat.SymDense, error) {
	p := mat.NewSymDense(sys.Q.SymmetricDim(), nil)
	p.CopySym(sys.Q)

	for k := 0; k < fixedPointMaxIter; k++ {
		next, _, err := riccatiStep(sys, p)
		if err != nil {
			return nil, err
		}
		if !allFinite(next) {
			return nil, fmt.Errorf("%w: non-finite iterate at step %d", ErrNotConverged, k)
		}
		change := relDiff(next, p)
		p = next
		if change < fixedPointTol {
			if stabilizing {
				rho, err := closedLoopRadius(sys, p)
				if err != nil {
					return nil, err
				}
				if rho >= 1 {
					return nil, fmt.Errorf("%w: spectral radius %.4g", ErrNotStabilizing, rho)
				}
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: fixed point after %d steps", ErrNotConverged, fixedPointMaxIter)
}

// riccatiStep applies one Riccati update to p and also returns the Kalman
// gain K = P F' (F P F' + R)^-1 that the update used.
func riccatiStep(sys System, p *mat.SymDense) (*mat.SymDense, *mat.Dense, error) {
	var fp mat.Dense
	fp.Mul(sys.F, p)

	var innov mat.Dense
	innov.Mul(&fp, sys.F.T())
	innov.Add(&innov, sys.R)

	var chol mat.Cholesky
	if !chol.Factorize(symmetrize(&innov)) {
		return nil, nil, fmt.Errorf("%w: innovation covariance", ErrSingular)
	}
	// kt = S^-1 F P, K = kt'
	var kt mat.Dense
	if err := chol.SolveTo(&kt, &fp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	k := mat.DenseCopyOf(kt.T())

	// filtered = P - K F P
	var filt mat.Dense
	filt.Mul(k, &fp)
	filt.Sub(p, &filt)

	var next, tmp mat.Dense
	tmp.Mul(sys.A, &filt)
	next.Mul(&tmp, sys.A.T())
	next.Add(&next, sys.Q)
	return symmetrize(&next), k, nil
}

// closedLoopRadius returns the spectral radius of A (I - K F) for the gain
// implied by p.
func closedLoopRadius(sys System, p *mat.SymDense) (float64, error) {
	dx, _ := sys.Dims()
	_, k, err := riccatiStep(sys, p)
	if err != nil {
		return 0, err
	}
	var kf mat.Dense
	kf.Mul(k, sys.F)
	ikf := identity(dx)
	ikf.Sub(ikf, &kf)

	var l mat.Dense
	l.Mul(sys.A, ikf)

	var eig mat.Eigen
	if !eig.Factorize(&l, mat.EigenNone) {
		return 0, fmt.Errorf("%w: closed-loop eigen decomposition", ErrNotConverged)
	}
	rho := 0.0
	for _, v := range eig.Values(nil) {
		rho = math.Max(rho, cmplx.Abs(v))
	}
	return rho, nil
}
