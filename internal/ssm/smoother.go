// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Options selects how the per-sample recursions are evaluated.
type Options struct {
	// UseBLAS runs matrix-vector products through blas64.Gemv on the raw
	// row-major storage instead of mat.VecDense products.
	UseBLAS bool
}

// Smoothed is the output of the steady-state smoother.
type Smoothed struct {
	// Smoothed state means (samples x dx)
	X *mat.Dense
	// One-step predicted state means (samples x dx), row 0 is zero
	Pred *mat.Dense
	// Steady-state filtered error covariance
	Filtered *mat.SymDense
	// Steady-state one-step prediction error covariance (Riccati solution)
	Predicted *mat.SymDense
	// Steady-state smoothed error covariance
	Smoothed *mat.SymDense
	// Smoothing gain B
	Gain *mat.Dense
	// Sampling covariance S - B P B'
	Sampling *mat.SymDense
	// Innovation-form log-likelihood of the observations
	LogLikelihood float64
}

// steadyState caches the quantities shared by every forward pass.
type steadyState struct {
	p          *mat.SymDense
	k          *mat.Dense
	sInv       *mat.Dense
	halfLogDet float64
}

func newSteadyState(sys System) (*steadyState, error) {
	p, err := SolveRiccati(sys)
	if err != nil {
		return nil, err
	}

	var fp mat.Dense
	fp.Mul(sys.F, p)
	var innov mat.Dense
	innov.Mul(&fp, sys.F.T())
	innov.Add(&innov, sys.R)

	var chol mat.Cholesky
	if !chol.Factorize(symmetrize(&innov)) {
		return nil, ErrNotPositive
	}
	var kt mat.Dense
	if err := chol.SolveTo(&kt, &fp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositive, err)
	}
	var sInv mat.SymDense
	if err := chol.InverseTo(&sInv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPositive, err)
	}

	return &steadyState{
		p:          p,
		k:          mat.DenseCopyOf(kt.T()),
		sInv:       mat.DenseCopyOf(&sInv),
		halfLogDet: chol.LogDet() / 2,
	}, nil
}

// gemv computes dst = alpha * a * x + beta * dst.
func (o Options) gemv(dst []float64, alpha float64, a *mat.Dense, x []float64, beta float64) {
	if o.UseBLAS {
		blas64.Gemv(blas.NoTrans, alpha, a.RawMatrix(),
			blas64.Vector{N: len(x), Inc: 1, Data: x},
			beta, blas64.Vector{N: len(dst), Inc: 1, Data: dst})
		return
	}
	var v mat.VecDense
	v.MulVec(a, mat.NewVecDense(len(x), x))
	if beta == 0 {
		for i := range dst {
			dst[i] = 0
		}
	} else {
		floats.Scale(beta, dst)
	}
	floats.AddScaled(dst, alpha, v.RawVector().Data)
}

// forward runs the steady-state filter over y, writing predictions and
// filtered means into tr, and returns the innovation log-likelihood. When
// innov is non-nil the innovations are stored there (samples x ny).
func (o Options) forward(y *mat.Dense, sys System, ss *steadyState, tr *Trajectory, innov *mat.Dense) float64 {
	t, ny := y.Dims()
	e := make([]float64, ny)
	w := make([]float64, ny)
	ll := 0.0
	for i := 0; i < t; i++ {
		pred := tr.Pred.RawRowView(i)
		if i == 0 {
			for j := range pred {
				pred[j] = 0
			}
		} else {
			o.gemv(pred, 1, sys.A, tr.X.RawRowView(i-1), 0)
		}
		x := tr.X.RawRowView(i)
		copy(x, pred)

		// e = y_t - F pred
		copy(e, y.RawRowView(i))
		o.gemv(e, -1, sys.F, pred, 1)
		// x = pred + K e
		o.gemv(x, 1, ss.k, e, 1)

		o.gemv(w, 1, ss.sInv, e, 0)
		ll += 0.5*floats.Dot(e, w) + ss.halfLogDet
		if innov != nil {
			copy(innov.RawRowView(i), e)
		}
	}
	return -ll
}

func checkObservations(y *mat.Dense, sys System) error {
	if err := sys.Validate(); err != nil {
		return err
	}
	_, ny := sys.Dims()
	if _, c := y.Dims(); c != ny {
		return fmt.Errorf("%w: y has %d channels, F has %d rows", ErrDimension, c, ny)
	}
	return nil
}

// Smooth computes the steady-state smoothed distribution of the states given
// the observations y (samples x channels).
// Input:
//   - y: observations, one row per sample
//   - sys: companion-form system
//   - tr: optional buffers to reuse; allocated when nil or of the wrong shape
//   - opts: evaluation options
//
// Returns:
//   - the smoothed means, steady-state covariances, smoothing gain and the
//     log-likelihood
//   - ErrRiccati, ErrNotPositive or ErrDegenerate on numerical failure
func Smooth(y *mat.Dense, sys System, tr *Trajectory, opts Options) (*Smoothed, error) {
	if err := checkObservations(y, sys); err != nil {
		return nil, err
	}
	t, _ := y.Dims()
	dx, _ := sys.Dims()
	if !tr.fits(t, dx) {
		tr = NewTrajectory(t, dx)
	}

	ss, err := newSteadyState(sys)
	if err != nil {
		return nil, err
	}

	// 1. Filtered covariance S = P - K F P.
	var fp, kfp mat.Dense
	fp.Mul(sys.F, ss.p)
	kfp.Mul(ss.k, &fp)
	var filt mat.Dense
	filt.Sub(ss.p, &kfp)
	filtered := symmetrize(&filt)

	// 2. Smoothing gain B = S A' P^-1, from P X = A S and B = X'.
	var as mat.Dense
	as.Mul(sys.A, filtered)
	var xs mat.Dense
	var chol mat.Cholesky
	ok := chol.Factorize(ss.p)
	if ok {
		err = chol.SolveTo(&xs, &as)
	}
	if !ok || err != nil {
		var svd mat.SVD
		if !svd.Factorize(ss.p, mat.SVDFullU|mat.SVDFullV) {
			return nil, fmt.Errorf("%w: smoothing gain", ErrSingular)
		}
		rank := svd.Rank(1e-12)
		if rank == 0 {
			return nil, fmt.Errorf("%w: smoothing gain, predicted covariance has rank 0", ErrSingular)
		}
		xs.Reset()
		svd.SolveTo(&xs, &as, rank)
	}
	b := mat.DenseCopyOf(xs.T())

	// 3. Sampling covariance S_hat = S - B P B'.
	var bp, bpb mat.Dense
	bp.Mul(b, ss.p)
	bpb.Mul(&bp, b.T())
	var sh mat.Dense
	sh.Sub(filtered, &bpb)
	sampling := symmetrize(&sh)

	// 4. Smoothed covariance solves X = B X B' + S_hat.
	smoothed, err := SolveLyapunov(b, sampling)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	for i := 0; i < dx; i++ {
		if !(smoothed.At(i, i) > 0) {
			return nil, fmt.Errorf("%w: entry %d is %g", ErrDegenerate, i, smoothed.At(i, i))
		}
	}

	// 5. Forward filter then backward smoothing pass.
	ll := opts.forward(y, sys, ss, tr, nil)
	d := make([]float64, dx)
	for i := t - 2; i >= 0; i-- {
		floats.SubTo(d, tr.X.RawRowView(i+1), tr.Pred.RawRowView(i+1))
		opts.gemv(tr.X.RawRowView(i), 1, b, d, 1)
	}

	return &Smoothed{
		X:             tr.X,
		Pred:          tr.Pred,
		Filtered:      filtered,
		Predicted:     ss.p,
		Smoothed:      smoothed,
		Gain:          b,
		Sampling:      sampling,
		LogLikelihood: ll,
	}, nil
}

// Predict runs only the forward filter and returns the one-step predicted
// observations F x_{t|t-1} (samples x channels).
func Predict(y *mat.Dense, sys System, opts Options) (*mat.Dense, error) {
	if err := checkObservations(y, sys); err != nil {
		return nil, err
	}
	t, _ := y.Dims()
	dx, _ := sys.Dims()
	ss, err := newSteadyState(sys)
	if err != nil {
		return nil, err
	}
	tr := NewTrajectory(t, dx)
	opts.forward(y, sys, ss, tr, nil)

	var out mat.Dense
	out.Mul(tr.Pred, sys.F.T())
	return &out, nil
}

// LogLikelihood returns the innovation-form log-likelihood of y under sys.
func LogLikelihood(y *mat.Dense, sys System, opts Options) (float64, error) {
	if err := checkObservations(y, sys); err != nil {
		return 0, err
	}
	t, _ := y.Dims()
	dx, _ := sys.Dims()
	ss, err := newSteadyState(sys)
	if err != nil {
		return 0, err
	}
	return opts.forward(y, sys, ss, NewTrajectory(t, dx), nil), nil
}

// CrossValidate returns the closed-form leave-one-out fit statistic
// -sum ||n_t||^2 / (T tr C)^2, where n_t are the deleted-residual
// innovations obtained by a backward recursion over the filter output.
func CrossValidate(y *mat.Dense, sys System, opts Options) (float64, error) {
	if err := checkObservations(y, sys); err != nil {
		return 0, err
	}
	t, ny := y.Dims()
	dx, _ := sys.Dims()
	ss, err := newSteadyState(sys)
	if err != nil {
		return 0, err
	}

	// 1. Steady-state quantities of the residual recursion.
	var ftsi, temp3 mat.Dense
	ftsi.Mul(sys.F.T(), ss.sInv)
	temp3.Mul(&ftsi, sys.F)

	var kf mat.Dense
	kf.Mul(ss.k, sys.F)
	ikf := identity(dx)
	ikf.Sub(ikf, &kf)
	var l mat.Dense
	l.Mul(sys.A, ikf)

	u, err := SolveLyapunov(&l, symmetrize(&temp3))
	if err != nil {
		return 0, err
	}
	var kk mat.Dense
	kk.Mul(sys.A, ss.k)
	var ku, c mat.Dense
	ku.Mul(kk.T(), u)
	c.Mul(&ku, &kk)
	c.Add(&c, ss.sInv)
	trace := mat.Trace(&c)

	// 2. Forward filter, keeping the innovations.
	innov := mat.NewDense(t, ny, nil)
	opts.forward(y, sys, ss, NewTrajectory(t, dx), innov)

	// 3. Backward recursion.
	kkT := mat.DenseCopyOf(kk.T())
	fT := mat.DenseCopyOf(sys.F.T())
	lT := mat.DenseCopyOf(l.T())
	r := make([]float64, dx)
	rNext := make([]float64, dx)
	w := make([]float64, ny)
	n := make([]float64, ny)
	sum := 0.0
	for i := t - 1; i >= 0; i-- {
		opts.gemv(w, 1, ss.sInv, innov.RawRowView(i), 0)
		copy(n, w)
		opts.gemv(n, -1, kkT, r, 1)
		sum += floats.Dot(n, n)
		if i > 0 {
			opts.gemv(rNext, 1, fT, w, 0)
			opts.gemv(rNext, 1, lT, r, 1)
			r, rNext = rNext, r
		}
	}
	den := float64(t) * trace
	return -sum / (den * den), nil
}
