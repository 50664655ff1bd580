// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

// Fit runs EM for the latent VAR on the observations y (samples x channels)
// with mixing matrix f (channels x sources) and noise covariance r.
// Input:
//   - ctx: checked once per EM iteration
//   - y, f, r: observations, mixing matrix, observation noise covariance
//   - opts: penalty, warm start, restriction
//
// Returns:
//   - the fitted model; Converged is false when the iteration cap was hit
//   - a validation error, or a fatal numerical error from the smoother
func (e *Estimator) Fit(ctx context.Context, y, f *mat.Dense, r *mat.SymDense, opts FitOptions) (*Fitted, error) {
	if opts.Pair != nil && opts.Lambda != 0 {
		return nil, ErrConflictingPenalty
	}
	if opts.Lambda < 0 || (opts.Pair != nil && (opts.Pair.Self < 0 || opts.Pair.Cross < 0)) {
		return nil, ErrNegativePenalty
	}
	if e.Order < 1 {
		return nil, fmt.Errorf("%w: order must be at least 1", ssm.ErrDimension)
	}
	_, m := f.Dims()
	t, _ := y.Dims()
	p := e.Order
	if t <= p+1 {
		return nil, fmt.Errorf("%w: %d samples for order %d", ssm.ErrDimension, t, p)
	}

	eigenmodes := e.Eigenmodes
	if eigenmodes < 1 {
		eigenmodes = 1
	}
	mk, err := NewMask(m, p, e.SelfHistory, eigenmodes, opts.Restriction)
	if err != nil {
		return nil, err
	}

	// 1. Initial parameters, owned by this fit.
	a := mat.NewDense(m, m*p, nil)
	if opts.A0 != nil {
		if ar, ac := opts.A0.Dims(); ar != m || ac != m*p {
			return nil, fmt.Errorf("%w: A0 is %dx%d, want %dx%d", ssm.ErrDimension, ar, ac, m, m*p)
		}
		a.Copy(opts.A0)
	}
	mk.Apply(a)
	q := make([]float64, m)
	if opts.Q0 != nil {
		if len(opts.Q0) != m {
			return nil, fmt.Errorf("%w: Q0 has %d entries, want %d", ssm.ErrDimension, len(opts.Q0), m)
		}
		copy(q, opts.Q0)
	} else {
		floats.AddConst(1, q)
	}

	md := ssm.Model{A: a, F: f, Q: q, R: r, Order: p}
	tr := opts.Trajectory
	logger := e.logger().With("order", p, "restriction", opts.Restriction.String())

	var (
		trace     Trace
		qChange   = math.Inf(1)
		converged bool
		iter      int
		last      *ssm.Smoothed
	)
	maxIter := e.MaxIter
	if maxIter < 1 {
		maxIter = 1
	}
	innerTol := math.Min(1e-4, e.RelTol)

	for iter = 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// 2. E-step
		sys, err := md.Companion()
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		sm, err := ssm.Smooth(y, sys, tr, e.smootherOptions())
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		tr = &ssm.Trajectory{Pred: sm.Pred, X: sm.X}
		last = sm

		st := sufficientStats(sm, m, p)
		trace.LogLikelihood = append(trace.LogLikelihood, sm.LogLikelihood)
		trace.Discrepancy = append(trace.Discrepancy, discrepancy(a, q, st))
		trace.CrossFit = append(trace.CrossFit, crossFit(sm.X, a, q, m, p))

		// 3. Stopping rule, from the second iteration on
		if iter > 0 {
			prev := trace.LogLikelihood[iter-1]
			rel := (prev - sm.LogLikelihood) / prev
			if math.Abs(rel) < e.RelTol && qChange < e.RelTol {
				converged = true
				break
			}
		}

		// 4. M-step
		beta := 2 * e.Beta / float64(st.n)
		alpha := 0.0
		if e.Alpha != 0 {
			alpha = 2 * (e.Alpha + 1) / float64(st.n)
		}
		for c := 0; c < e.MaxCyclicIter; c++ {
			if !opts.FixedA {
				updateA(a, st, q, mk, opts.Lambda, opts.Pair, eigenmodes, innerTol)
			}
			if opts.FixedQ {
				qChange = 0
			} else {
				qChange = updateQ(q, a, st, alpha, beta)
			}
			if minQ := floats.Min(q); minQ < 0 {
				logger.Warn("innovation variance possibly negative", "iteration", iter, "min", minQ)
			}
			if qChange < e.RelTol {
				break
			}
		}
		if opts.Observe != nil {
			opts.Observe(iter, a, q)
		}
	}

	iterations := iter
	if converged {
		iterations = iter + 1
	} else {
		// The cap leaves the last E-step one M-step behind the parameters.
		sys, err := md.Companion()
		if err != nil {
			return nil, fmt.Errorf("final smoothing: %w", err)
		}
		sm, err := ssm.Smooth(y, sys, tr, e.smootherOptions())
		if err != nil {
			return nil, fmt.Errorf("final smoothing: %w", err)
		}
		tr = &ssm.Trajectory{Pred: sm.Pred, X: sm.X}
		last = sm
	}
	logger.Debug("em finished",
		slog.Int("iterations", iterations),
		slog.Bool("converged", converged),
		slog.Float64("loglik", last.LogLikelihood))

	sources := mat.DenseCopyOf(last.X.Slice(0, t, 0, m))
	return &Fitted{
		Model:         md,
		Mask:          mk,
		Restriction:   opts.Restriction,
		Trace:         trace,
		Lambda:        opts.Lambda,
		Pair:          opts.Pair,
		Iterations:    iterations,
		Converged:     converged,
		LogLikelihood: last.LogLikelihood,
		Sources:       sources,
		Trajectory:    tr,
		samples:       t,
		eigenmodes:    eigenmodes,
		opts:          e.smootherOptions(),
	}, nil
}
