// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package ssm implements the steady-state Kalman filter and smoother for the
// stationary linear-Gaussian model
//
//	x_t = A x_{t-1} + u_t,  u_t ~ N(0, Q)
//	y_t = F x_t + n_t,      n_t ~ N(0, R)
//
// together with the discrete Riccati and Lyapunov solvers it relies on.
package ssm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when the model matrices do not agree.
	ErrDimension = errors.New("ssm: dimension mismatch")
	// ErrSingular marks a linear solve that hit a (numerically) singular matrix.
	ErrSingular = errors.New("ssm: singular linear system")
	// ErrNotConverged marks an iterative solver that ran out of iterations.
	ErrNotConverged = errors.New("ssm: iteration did not converge")
	// ErrNotStabilizing marks a Riccati solution whose closed loop is unstable.
	ErrNotStabilizing = errors.New("ssm: riccati solution is not stabilizing")
	// ErrRiccati is returned when every Riccati solver in the fallback chain failed.
	ErrRiccati = errors.New("ssm: riccati equation has no usable solution")
	// ErrNotPositive is returned when the innovation covariance has no Cholesky factor.
	ErrNotPositive = errors.New("ssm: innovation covariance is not positive definite")
	// ErrDegenerate is returned when the smoothed covariance has a non-positive diagonal.
	ErrDegenerate = errors.New("ssm: smoothed covariance has non-positive diagonal")
)

// System is a linear-Gaussian state-space model in companion form.
type System struct {
	// State transition (dx x dx)
	A *mat.Dense
	// Observation / mixing matrix (ny x dx)
	F *mat.Dense
	// State innovation covariance (dx x dx)
	Q *mat.SymDense
	// Observation noise covariance (ny x ny)
	R *mat.SymDense
}

// Dims returns the state and observation dimensions of the system.
func (s System) Dims() (dx, ny int) {
	ny, dx = s.F.Dims()
	return dx, ny
}

// Validate checks that all four matrices are present and conformable.
func (s System) Validate() error {
	if s.A == nil || s.F == nil || s.Q == nil || s.R == nil {
		return fmt.Errorf("%w: system matrices must all be set", ErrDimension)
	}
	ar, ac := s.A.Dims()
	ny, dx := s.F.Dims()
	if ar != ac || ar != dx {
		return fmt.Errorf("%w: A is %dx%d, F is %dx%d", ErrDimension, ar, ac, ny, dx)
	}
	if s.Q.SymmetricDim() != dx {
		return fmt.Errorf("%w: Q is %d, want %d", ErrDimension, s.Q.SymmetricDim(), dx)
	}
	if s.R.SymmetricDim() != ny {
		return fmt.Errorf("%w: R is %d, want %d", ErrDimension, s.R.SymmetricDim(), ny)
	}
	return nil
}

// Trajectory holds the one-step predicted and the filtered/smoothed state
// sequences (samples x dx). A Trajectory is owned by one caller at a time and
// can be handed back to Smooth to avoid reallocating across EM iterations.
type Trajectory struct {
	Pred *mat.Dense
	X    *mat.Dense
}

// NewTrajectory allocates a trajectory for t samples of a dx dimensional state.
func NewTrajectory(t, dx int) *Trajectory {
	return &Trajectory{
		Pred: mat.NewDense(t, dx, nil),
		X:    mat.NewDense(t, dx, nil),
	}
}

// fits reports whether the trajectory buffers have the requested shape.
func (tr *Trajectory) fits(t, dx int) bool {
	if tr == nil || tr.Pred == nil || tr.X == nil {
		return false
	}
	r1, c1 := tr.Pred.Dims()
	r2, c2 := tr.X.Dims()
	return r1 == t && r2 == t && c1 == dx && c2 == dx
}

// symmetrize returns (a + a^T) / 2 as a SymDense.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// identity returns the n x n identity matrix.
func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// allFinite reports whether every entry of a is finite.
func allFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// relDiff returns ||a - b||_F / max(||a||_F, tiny).
func relDiff(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	den := mat.Norm(a, 2)
	if den < 1e-300 {
		den = 1e-300
	}
	return mat.Norm(&d, 2) / den
}
