// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package lvar estimates sparse latent VAR models observed through a fixed
// mixing matrix. Coefficients and the diagonal innovation covariance are
// learned by EM: the E-step is the steady-state smoother of package ssm and
// the M-step is an L1 coordinate solve for A followed by a closed-form Q.
package lvar

import (
	"errors"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/logging"
	"latentgc/internal/ssm"
)

var (
	// ErrRestriction is returned for a malformed restriction string.
	ErrRestriction = errors.New("lvar: malformed restriction")
	// ErrRegionOutOfRange is returned when a restriction names a missing region.
	ErrRegionOutOfRange = errors.New("lvar: region index out of range")
	// ErrConflictingPenalty is returned when a shared lambda and a pair are both set.
	ErrConflictingPenalty = errors.New("lvar: lambda and penalty pair are mutually exclusive")
	// ErrNegativePenalty is returned for a negative regularization strength.
	ErrNegativePenalty = errors.New("lvar: regularization strength must be non-negative")
)

// Pair holds separate L1 strengths for own-region and cross-region coefficients.
type Pair struct {
	Self  float64
	Cross float64
}

// Criterion selects an information criterion.
type Criterion int

// Information criteria for InformationCriterion
const (
	AIC Criterion = iota
	BIC
)

// Estimator holds the structural settings of the EM fit. An Estimator is
// immutable once built and safe to share between goroutines.
type Estimator struct {
	// VAR order p
	Order int
	// Number of self lags kept; self lags with index >= SelfHistory are zero
	SelfHistory int
	// Eigenmodes per region; sources come in blocks of this size
	Eigenmodes int
	// EM iteration cap
	MaxIter int
	// Coordinate/Q passes per M-step
	MaxCyclicIter int
	// Relative tolerance for the EM stopping rule
	RelTol float64
	// Inverse-gamma prior on Q (zero disables)
	Alpha float64
	Beta  float64
	// Evaluate smoother recursions through blas64.Gemv
	UseBLAS bool

	Logger *slog.Logger
}

// NewEstimator returns an Estimator with the default iteration settings.
func NewEstimator(order, selfHistory, eigenmodes int) *Estimator {
	return &Estimator{
		Order:         order,
		SelfHistory:   selfHistory,
		Eigenmodes:    eigenmodes,
		MaxIter:       500,
		MaxCyclicIter: 3,
		RelTol:        1e-4,
	}
}

func (e *Estimator) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func (e *Estimator) smootherOptions() ssm.Options {
	return ssm.Options{UseBLAS: e.UseBLAS}
}

// FitOptions are the per-fit inputs of Estimator.Fit.
type FitOptions struct {
	// Shared L1 strength; mutually exclusive with a non-nil Pair
	Lambda float64
	Pair   *Pair
	// Initial coefficients (m x m*p, stacked). Copied, never retained.
	A0 *mat.Dense
	// Initial innovation variances. Copied, never retained. Nil means all ones.
	Q0 []float64
	// Link restriction for a reduced fit
	Restriction *Restriction
	// Hold A or Q at their initial values
	FixedA bool
	FixedQ bool
	// Scratch buffers handed over by a previous fit of the same shape
	Trajectory *ssm.Trajectory
	// Called after every M-step with the current coefficients and variances
	Observe func(iteration int, a *mat.Dense, q []float64)
}

// Trace records the per-iteration objective values of a fit.
type Trace struct {
	// Innovation-form log-likelihood of the observations
	LogLikelihood []float64
	// Expected complete-data log-likelihood of the latent process
	Discrepancy []float64
	// Log-likelihood of the smoothed means under the fitted VAR
	CrossFit []float64
}

// Fitted is a fitted latent VAR model.
type Fitted struct {
	// Estimated model; Model.A is stacked (m x m*p)
	Model ssm.Model
	// Structural zeros enforced during the fit
	Mask Mask
	// Restriction the fit was run under (nil for a full model)
	Restriction *Restriction
	Trace       Trace
	Lambda      float64
	Pair        *Pair
	Iterations  int
	// True iff the stopping rule fired before MaxIter
	Converged bool
	// Log-likelihood of the observations under Model
	LogLikelihood float64
	// Smoothed current sources under Model (samples x m)
	Sources *mat.Dense
	// Scratch buffers; may be passed on to the next fit
	Trajectory *ssm.Trajectory

	samples    int
	eigenmodes int
	opts       ssm.Options
}
