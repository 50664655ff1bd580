// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package cvpath selects the L1 strength of the latent VAR estimator along a
// regularization path using forward-chaining cross-validation and the
// estimation-stability criterion.
package cvpath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"latentgc/internal/logging"
	"latentgc/internal/lvar"
	"latentgc/internal/pool"
)

var (
	// ErrFolds is returned for an unusable number of folds.
	ErrFolds = errors.New("cvpath: invalid fold count")
	// ErrEmptyGrid is returned when no regularization strengths are given.
	ErrEmptyGrid = errors.New("cvpath: empty regularization grid")
)

// Selector walks a grid of L1 strengths on every fold and refits the chosen
// strength on the whole series.
type Selector struct {
	Estimator *lvar.Estimator
	// Number of forward-chaining folds
	Folds int
	// Regularization strengths, walked in the given order with warm starts
	Grid []float64
	// Select with the estimation-stability criterion
	UseES bool
	// Bound the ES search by the held-out optimum and search the stronger
	// strengths before it
	HeldOutBoundary bool
	// Fold workers; 0 means one per CPU
	Workers int
	Logger  *slog.Logger
}

// Path holds the cross-validation record and the refit at the chosen strength.
type Path struct {
	Grid []float64
	// Held-out log-likelihood [fold][grid]
	HeldOut [][]float64
	// Rescaled lambda times the L1 norm of A [fold][grid]
	Penalized [][]float64
	// One-step predictions of the full series [fold][grid] (samples x channels)
	Predictions [][]*mat.Dense
	// Estimation-stability statistic per grid point
	Stability []float64
	// Index of the chosen strength and the strength itself
	Index  int
	Lambda float64
	Final  *lvar.Fitted
	AIC    float64
	BIC    float64
}

func (s *Selector) logger() *slog.Logger {
	if s.Logger == nil {
		return logging.Discard()
	}
	return s.Logger
}

// Fit runs the cross-validation and the final refit.
// Input:
//   - y, f, r: observations (samples x channels), mixing matrix, noise covariance
//   - a0, q0: initial coefficients and variances for the first grid point of
//     every fold and for the refit; nil keeps the estimator defaults
//
// Returns:
//   - the path record with the refit model
//   - error from fold setup or from any fit
func (s *Selector) Fit(ctx context.Context, y, f *mat.Dense, r *mat.SymDense, a0 *mat.Dense, q0 []float64) (*Path, error) {
	if len(s.Grid) == 0 {
		return nil, ErrEmptyGrid
	}
	t, ny := y.Dims()
	splits, err := TimeSeriesSplit(t, s.Folds)
	if err != nil {
		return nil, err
	}
	logger := s.logger()

	k, g := len(splits), len(s.Grid)
	path := &Path{
		Grid:        append([]float64(nil), s.Grid...),
		HeldOut:     make([][]float64, k),
		Penalized:   make([][]float64, k),
		Predictions: make([][]*mat.Dense, k),
	}
	for i := 0; i < k; i++ {
		path.HeldOut[i] = make([]float64, g)
		path.Penalized[i] = make([]float64, g)
		path.Predictions[i] = make([]*mat.Dense, g)
	}

	// 1. One task per fold; each fold writes only its own row.
	logger.Info("starting cross-validation", "folds", k, "grid", g)
	err = pool.Run(ctx, k, pool.Options{Workers: s.Workers, Logger: logger}, func(ctx context.Context, fold int) error {
		sp := splits[fold]
		yTrain := y.Slice(0, sp.Train(), 0, ny).(*mat.Dense)
		yTest := y.Slice(sp.TestStart, sp.TestEnd, 0, ny).(*mat.Dense)
		scale := math.Sqrt(float64(t)) / math.Sqrt(float64(sp.Train()))

		opts := lvar.FitOptions{A0: a0, Q0: q0}
		for j, lambda := range s.Grid {
			opts.Lambda = lambda * scale
			logger.Debug("fold fit", "fold", fold, "lambda", opts.Lambda)
			ft, err := s.Estimator.Fit(ctx, yTrain, f, r, opts)
			if err != nil {
				return fmt.Errorf("fold %d, lambda %g: %w", fold, lambda, err)
			}

			ll, err := ft.Evaluate(yTest)
			if err != nil {
				return fmt.Errorf("fold %d, lambda %g: held-out: %w", fold, lambda, err)
			}
			pred, err := ft.Predict(y)
			if err != nil {
				return fmt.Errorf("fold %d, lambda %g: prediction: %w", fold, lambda, err)
			}
			path.HeldOut[fold][j] = ll
			path.Penalized[fold][j] = opts.Lambda * lvar.NormOne(ft.Model.A)
			path.Predictions[fold][j] = pred

			// Warm start for the next strength
			opts.A0 = ft.Model.A
			opts.Trajectory = ft.Trajectory
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("done cross-validation")

	// 2. Selection
	path.Stability = Stability(path.Predictions)
	path.Index = selectIndex(path, s.UseES, s.HeldOutBoundary)
	path.Lambda = s.Grid[path.Index]
	logger.Info("selected regularization", "lambda", path.Lambda, "index", path.Index, "es", s.UseES)

	// 3. Refit on the whole series
	final, err := s.Estimator.Fit(ctx, y, f, r, lvar.FitOptions{Lambda: path.Lambda, A0: a0, Q0: q0})
	if err != nil {
		return nil, fmt.Errorf("refit: %w", err)
	}
	path.Final = final
	if path.AIC, err = final.InformationCriterion(lvar.AIC); err != nil {
		return nil, err
	}
	if path.BIC, err = final.InformationCriterion(lvar.BIC); err != nil {
		return nil, err
	}
	return path, nil
}

// selectIndex picks the grid index. The boundary is the strength with the
// largest mean penalized norm. With ES it takes the most stable strength no
// sparser than the boundary (the boundary and every later, weaker strength)
// and falls back to the boundary itself. Without ES it returns the boundary.
//
// With heldOutBoundary the boundary is instead the held-out log-likelihood
// optimum and the search runs over the stronger strengths before it.
func selectIndex(path *Path, useES, heldOutBoundary bool) int {
	if !useES {
		return floats.MaxIdx(foldMeans(path.Penalized))
	}
	if heldOutBoundary {
		index := floats.MaxIdx(foldMeans(path.HeldOut))
		if best, ok := nanArgMin(path.Stability[:index]); ok {
			return best
		}
		return index
	}
	index := floats.MaxIdx(foldMeans(path.Penalized))
	if best, ok := nanArgMin(path.Stability[index:]); ok {
		return index + best
	}
	return index
}

// foldMeans averages [fold][grid] over folds.
func foldMeans(v [][]float64) []float64 {
	g := len(v[0])
	out := make([]float64, g)
	col := make([]float64, len(v))
	for j := 0; j < g; j++ {
		for i := range v {
			col[i] = v[i][j]
		}
		out[j] = stat.Mean(col, nil)
	}
	return out
}

// nanArgMin returns the index of the smallest non-NaN value.
func nanArgMin(v []float64) (int, bool) {
	best, found := 0, false
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if !found || x < v[best] {
			best, found = i, true
		}
	}
	return best, found
}

// Stability returns, per grid point, the spread of the fold predictions
// around their mean relative to the energy of the mean:
// sum (pred - mean)^2 / sum mean^2.
func Stability(pred [][]*mat.Dense) []float64 {
	k := len(pred)
	if k == 0 {
		return nil
	}
	g := len(pred[0])
	out := make([]float64, g)
	for j := 0; j < g; j++ {
		r, c := pred[0][j].Dims()
		mean := mat.NewDense(r, c, nil)
		for i := 0; i < k; i++ {
			mean.Add(mean, pred[i][j])
		}
		mean.Scale(1/float64(k), mean)

		var diff mat.Dense
		fluct := 0.0
		for i := 0; i < k; i++ {
			diff.Sub(pred[i][j], mean)
			n := mat.Norm(&diff, 2)
			fluct += n * n
		}
		energy := mat.Norm(mean, 2)
		out[j] = fluct / (energy * energy)
	}
	return out
}
