// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

// LogLikelihood returns the log-likelihood of y (samples x channels) under md.
func LogLikelihood(y *mat.Dense, md ssm.Model, opts ssm.Options) (float64, error) {
	sys, err := md.Companion()
	if err != nil {
		return 0, err
	}
	return ssm.LogLikelihood(y, sys, opts)
}

// Discrepancy returns the expected complete-data log-likelihood of the latent
// process under md, with the expectations taken from smoothing y under md.
func Discrepancy(y *mat.Dense, md ssm.Model, opts ssm.Options) (float64, error) {
	sys, err := md.Companion()
	if err != nil {
		return 0, err
	}
	sm, err := ssm.Smooth(y, sys, nil, opts)
	if err != nil {
		return 0, err
	}
	st := sufficientStats(sm, md.Sources(), md.Order)
	return discrepancy(md.A, md.Q, st), nil
}

// Evaluate returns the log-likelihood of the fitted parameters on y.
func (ft *Fitted) Evaluate(y *mat.Dense) (float64, error) {
	return LogLikelihood(y, ft.Model, ft.opts)
}

// Discrepancy evaluates the M-step functional of the fitted parameters on y.
func (ft *Fitted) Discrepancy(y *mat.Dense) (float64, error) {
	return Discrepancy(y, ft.Model, ft.opts)
}

// CrossValidation returns the closed-form held-out fit score of the fitted
// parameters on y. Larger is better.
func (ft *Fitted) CrossValidation(y *mat.Dense) (float64, error) {
	sys, err := ft.Model.Companion()
	if err != nil {
		return 0, err
	}
	return ssm.CrossValidate(y, sys, ft.opts)
}

// Predict returns the one-step-ahead predicted observations for y
// (samples x channels).
func (ft *Fitted) Predict(y *mat.Dense) (*mat.Dense, error) {
	sys, err := ft.Model.Companion()
	if err != nil {
		return nil, err
	}
	return ssm.Predict(y, sys, ft.opts)
}

// DegreesOfFreedom counts the non-negligible coefficients of the fit.
func (ft *Fitted) DegreesOfFreedom() int {
	return nonZero(ft.Model.A)
}

// InformationCriterion returns AIC = (2 df - 2 ll) / T or
// BIC = (log(T) df - 2 ll) / T for the fit.
func (ft *Fitted) InformationCriterion(c Criterion) (float64, error) {
	t := float64(ft.samples)
	df := float64(ft.DegreesOfFreedom())
	switch c {
	case AIC:
		return (2*df - 2*ft.LogLikelihood) / t, nil
	case BIC:
		return (math.Log(t)*df - 2*ft.LogLikelihood) / t, nil
	default:
		return 0, fmt.Errorf("lvar: unknown criterion %d", c)
	}
}

// Lags returns the fitted coefficients as per-lag matrices A_1..A_p.
func (ft *Fitted) Lags() []*mat.Dense {
	return Unravel(ft.Model.A, ft.Model.Order)
}
