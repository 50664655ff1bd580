// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package linktest tests directed region links by refitting the latent VAR
// with each link removed and comparing likelihoods against the full model.
package linktest

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/logging"
	"latentgc/internal/lvar"
	"latentgc/internal/pool"
	"latentgc/internal/ssm"
)

// Engine runs the reduced fits for a set of candidate links.
type Engine struct {
	Estimator *lvar.Estimator
	// Reduced-fit workers; 0 means one per CPU
	Workers int
	Logger  *slog.Logger
}

// Link is the outcome of one reduced fit.
type Link struct {
	Candidate
	LogLikelihood float64
	Bias          float64
	Converged     bool
	Iterations    int
}

// Outcome aggregates the reduced fits of one segment. Matrices are indexed
// [target][source]; entries of untested pairs are zero.
type Outcome struct {
	Links []Link
	// 2 (ll_full - ll_reduced)
	Deviance *mat.Dense
	// Sample-path bias of each reduced model
	Bias *mat.Dense
	// Convergence flag of each reduced fit
	Converged [][]bool
}

func (en *Engine) logger() *slog.Logger {
	if en.Logger == nil {
		return logging.Discard()
	}
	return en.Logger
}

// scratch is the per-worker state reused across reduced fits.
type scratch struct {
	tr *ssm.Trajectory
}

// Run fits one reduced model per candidate. Every reduced fit starts from the
// full coefficients with the tested block zeroed, the full variances and the
// full penalty.
// Input:
//   - y, f, r: observations (samples x channels), mixing matrix, noise covariance
//   - full: the fitted full model on y
//   - candidates: links to test
//
// Returns:
//   - per-link results and the aggregated matrices
//   - the first error of any reduced fit
func (en *Engine) Run(ctx context.Context, y, f *mat.Dense, r *mat.SymDense, full *lvar.Fitted, candidates []Candidate) (*Outcome, error) {
	eigenmodes := en.Estimator.Eigenmodes
	if eigenmodes < 1 {
		eigenmodes = 1
	}
	m := full.Model.Sources()
	if m%eigenmodes != 0 {
		return nil, fmt.Errorf("%w: %d sources not divisible into regions of %d", ssm.ErrDimension, m, eigenmodes)
	}
	nr := m / eigenmodes
	logger := en.logger()

	// Result arena; task i writes only links[i].
	links := make([]Link, len(candidates))
	logger.Info("checking links", "count", len(candidates))

	err := pool.RunScratch(ctx, len(candidates), pool.Options{Workers: en.Workers, Logger: logger},
		func() *scratch { return &scratch{} },
		func(s *scratch) error {
			s.tr = nil
			return nil
		},
		func(ctx context.Context, i int, s *scratch) error {
			c := candidates[i]
			res := lvar.NewLink(c.Source, c.Target)

			a0 := mat.DenseCopyOf(full.Model.A)
			zeroBlock(a0, c, eigenmodes, full.Model.Order)

			ft, err := en.Estimator.Fit(ctx, y, f, r, lvar.FitOptions{
				Lambda:      full.Lambda,
				Pair:        full.Pair,
				A0:          a0,
				Q0:          full.Model.Q,
				Restriction: res,
				Trajectory:  s.tr,
			})
			if err != nil {
				return fmt.Errorf("link %s: %w", c, err)
			}
			s.tr = ft.Trajectory

			bias, err := ft.Bias(y)
			if err != nil {
				return fmt.Errorf("link %s: bias: %w", c, err)
			}
			links[i] = Link{
				Candidate:     c,
				LogLikelihood: ft.LogLikelihood,
				Bias:          bias,
				Converged:     ft.Converged,
				Iterations:    ft.Iterations,
			}
			logger.Debug("reduced fit", "link", c.String(), "loglik", ft.LogLikelihood, "converged", ft.Converged)
			return nil
		})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Links:     links,
		Deviance:  mat.NewDense(nr, nr, nil),
		Bias:      mat.NewDense(nr, nr, nil),
		Converged: make([][]bool, nr),
	}
	for i := range out.Converged {
		out.Converged[i] = make([]bool, nr)
	}
	for _, l := range links {
		out.Deviance.Set(l.Target, l.Source, 2*(full.LogLikelihood-l.LogLikelihood))
		out.Bias.Set(l.Target, l.Source, l.Bias)
		out.Converged[l.Target][l.Source] = l.Converged
	}
	return out, nil
}

// zeroBlock clears every lag of the coefficients from the source region into
// the target region.
func zeroBlock(a *mat.Dense, c Candidate, eigenmodes, order int) {
	_, cols := a.Dims()
	m := cols / order
	for u := 0; u < eigenmodes; u++ {
		for v := 0; v < eigenmodes; v++ {
			for k := 0; k < order; k++ {
				a.Set(c.Target*eigenmodes+u, k*m+c.Source*eigenmodes+v, 0)
			}
		}
	}
}
