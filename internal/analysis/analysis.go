// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package analysis runs the segmented Granger-causality analysis: for every
// segment it fits the full latent VAR, tests each candidate region link with
// a reduced fit and collects deviances and biases into a result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/cvpath"
	"latentgc/internal/linktest"
	"latentgc/internal/logging"
	"latentgc/internal/lvar"
	"latentgc/internal/result"
	"latentgc/internal/ssm"
)

var (
	// ErrNoRegions is returned when no region is selected for testing.
	ErrNoRegions = errors.New("analysis: no regions to test")
	// ErrForwardShape is returned when the mixing matrix columns do not split
	// into whole regions.
	ErrForwardShape = errors.New("analysis: mixing matrix columns are not a multiple of the eigenmodes")
)

// Input is one recording.
type Input struct {
	Name string
	// Observations (channels x samples)
	Y *mat.Dense
	// Mixing matrix (channels x regions*eigenmodes); columns of one region adjacent
	F *mat.Dense
	// Observation noise variance; ignored when Config.Normalize is set
	NoiseMultiplier float64
	// Regions whose links are tested
	Regions []int

	Labels   []string
	Vertices [][]int
	Whitener *mat.Dense
}

// Config holds the analysis settings.
type Config struct {
	Order       int
	SelfHistory int
	Eigenmodes  int
	Segments    int

	// Regularization grid; more than one value enables cross-validation
	Grid []float64
	// Separate self and cross strengths; disables cross-validation
	Pair  *lvar.Pair
	Folds int
	UseES bool
	// ES searches the strengths before the held-out optimum
	ESHeldOut bool

	MaxIter       int
	MaxCyclicIter int
	RelTol        float64
	Alpha         float64
	Beta          float64

	// Minimum ratio of cross to self coefficient mass for a link to be tested
	SparsityFactor float64
	// Cumulative power share of the regions kept for testing; 1 keeps all
	VarThr float64

	// Scale observations and mixing columns before fitting
	Normalize bool
	UseBLAS   bool
	Workers   int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Order:         2,
		SelfHistory:   2,
		Eigenmodes:    2,
		Segments:      1,
		Grid:          []float64{0.1},
		Folds:         5,
		UseES:         true,
		MaxIter:       500,
		MaxCyclicIter: 3,
		RelTol:        1e-5,
		VarThr:        1,
		Normalize:     true,
	}
}

// Normalize scales the observations (channels x samples) by
// sqrt(||Y Y' / T||_F) and every mixing column to unit norm. It returns the
// scaled copies and the matching noise variance 1 / ||Y Y' / T||_F.
func Normalize(y, f *mat.Dense) (*mat.Dense, *mat.Dense, float64) {
	_, t := y.Dims()
	var yy mat.SymDense
	yy.SymOuterK(1/float64(t), y)
	norm := mat.Norm(&yy, 2)

	ys := mat.DenseCopyOf(y)
	ys.Scale(1/math.Sqrt(norm), ys)

	fs := mat.DenseCopyOf(f)
	_, m := fs.Dims()
	for j := 0; j < m; j++ {
		col := fs.ColView(j)
		if n := mat.Norm(col, 2); n > 0 {
			for i := 0; i < col.Len(); i++ {
				fs.Set(i, j, fs.At(i, j)/n)
			}
		}
	}
	return ys, fs, 1 / norm
}

func (c Config) estimator(logger *slog.Logger) *lvar.Estimator {
	est := lvar.NewEstimator(c.Order, c.SelfHistory, c.Eigenmodes)
	if c.MaxIter > 0 {
		est.MaxIter = c.MaxIter
	}
	if c.MaxCyclicIter > 0 {
		est.MaxCyclicIter = c.MaxCyclicIter
	}
	if c.RelTol > 0 {
		est.RelTol = c.RelTol
	}
	est.Alpha, est.Beta = c.Alpha, c.Beta
	est.UseBLAS = c.UseBLAS
	est.Logger = logger
	return est
}

// Run analyzes the recording segment by segment.
// Input:
//   - in: the recording
//   - cfg: analysis settings
//   - logger: nil discards progress messages
//
// Returns:
//   - the result with one entry per segment
//   - validation errors or the first fatal fit error
func Run(ctx context.Context, in Input, cfg Config, logger *slog.Logger) (*result.Result, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if len(in.Regions) == 0 {
		return nil, ErrNoRegions
	}
	if cfg.Eigenmodes < 1 {
		cfg.Eigenmodes = 1
	}
	ny, t := in.Y.Dims()
	fr, m := in.F.Dims()
	if fr != ny {
		return nil, fmt.Errorf("%w: %d channels in Y, %d rows in F", ssm.ErrDimension, ny, fr)
	}
	if m%cfg.Eigenmodes != 0 {
		return nil, fmt.Errorf("%w: %d columns, %d eigenmodes", ErrForwardShape, m, cfg.Eigenmodes)
	}
	nr := m / cfg.Eigenmodes
	for _, r := range in.Regions {
		if r < 0 || r >= nr {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", lvar.ErrRegionOutOfRange, r, nr)
		}
	}
	segments := cfg.Segments
	if segments < 1 {
		segments = 1
	}
	tt := t / segments
	if tt <= cfg.Order+1 {
		return nil, fmt.Errorf("%w: segments of %d samples for order %d", ssm.ErrDimension, tt, cfg.Order)
	}

	// 1. Scaling
	y, f, noise := in.Y, in.F, in.NoiseMultiplier
	if cfg.Normalize {
		y, f, noise = Normalize(in.Y, in.F)
	}
	if !(noise > 0) {
		return nil, fmt.Errorf("%w: noise variance %g", ssm.ErrNotPositive, noise)
	}
	r := mat.NewSymDense(ny, nil)
	for i := 0; i < ny; i++ {
		r.SetSym(i, i, noise)
	}

	res := result.New(in.Name)
	res.Regions, res.Channels, res.Samples = nr, ny, t
	res.Order, res.Eigenmodes = cfg.Order, cfg.Eigenmodes
	res.Labels, res.Vertices = in.Labels, in.Vertices
	res.Forward, res.NoiseMultiplier, res.Whitener = f, noise, in.Whitener

	// 2. Segments
	for s := 0; s < segments; s++ {
		start, end := s*tt, (s+1)*tt
		log := logger.With("segment", s+1, "of", segments)
		log.Info("segment started", "start", start, "end", end)

		ys := mat.DenseCopyOf(y.Slice(0, ny, start, end).T())
		seg, err := runSegment(ctx, ys, f, r, in.Regions, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", s, err)
		}
		seg.Start, seg.End = start, end
		res.Segments = append(res.Segments, *seg)
	}
	return res, nil
}

// runSegment analyzes one segment; y is samples x channels.
func runSegment(ctx context.Context, y, f *mat.Dense, r *mat.SymDense, regions []int, cfg Config, logger *slog.Logger) (*result.Segment, error) {
	_, m := f.Dims()
	est := cfg.estimator(logger)

	// 1. Starting variances
	q := 1.0
	qv, err := linktest.InitialQ(y, f)
	if err != nil {
		logger.Warn("initial variance search failed, using 1", "error", err)
	} else {
		q = qv
	}
	q0 := make([]float64, m)
	floats.AddConst(q, q0)

	// 2. Full model
	var (
		full     *lvar.Fitted
		aic, bic float64
	)
	if len(cfg.Grid) > 1 && cfg.Pair == nil {
		sel := &cvpath.Selector{
			Estimator:       est,
			Folds:           cfg.Folds,
			Grid:            cfg.Grid,
			UseES:           cfg.UseES,
			HeldOutBoundary: cfg.ESHeldOut,
			Workers:         cfg.Workers,
			Logger:          logger,
		}
		path, err := sel.Fit(ctx, y, f, r, nil, q0)
		if err != nil {
			return nil, fmt.Errorf("full model: %w", err)
		}
		full, aic, bic = path.Final, path.AIC, path.BIC
	} else {
		opts := lvar.FitOptions{Q0: q0, Pair: cfg.Pair}
		if cfg.Pair == nil && len(cfg.Grid) > 0 {
			opts.Lambda = cfg.Grid[0]
		}
		full, err = est.Fit(ctx, y, f, r, opts)
		if err != nil {
			return nil, fmt.Errorf("full model: %w", err)
		}
		aic, _ = full.InformationCriterion(lvar.AIC)
		bic, _ = full.InformationCriterion(lvar.BIC)
	}
	biasFull, err := full.Bias(y)
	if err != nil {
		return nil, fmt.Errorf("full model bias: %w", err)
	}
	logger.Info("full model fitted", "lambda", full.Lambda, "loglik", full.LogLikelihood, "iterations", full.Iterations)

	// 3. Links to test
	if cfg.VarThr > 0 && cfg.VarThr < 1 {
		regions, err = linktest.PowerRegions(full.Sources, cfg.Eigenmodes, cfg.VarThr)
		if err != nil {
			return nil, err
		}
	}
	cands, err := linktest.Candidates(full.Model.A, full.Model.Q, cfg.Order, regions, cfg.Eigenmodes, cfg.SparsityFactor)
	if err != nil {
		return nil, err
	}

	// 4. Reduced fits
	en := &linktest.Engine{Estimator: est, Workers: cfg.Workers, Logger: logger}
	out, err := en.Run(ctx, y, f, r, full, cands)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		biasFull = 0
	}

	seg := &result.Segment{
		Deviance:    out.Deviance,
		BiasFull:    biasFull,
		BiasReduced: out.Bias,
		Converged:   out.Converged,
		Regions:     regions,
		Full: result.Model{
			A:             mat.DenseCopyOf(full.Model.A),
			Q:             append([]float64(nil), full.Model.Q...),
			Lambda:        full.Lambda,
			LogLikelihood: full.LogLikelihood,
			Iterations:    full.Iterations,
			Converged:     full.Converged,
			AIC:           aic,
			BIC:           bic,
		},
	}
	for _, l := range out.Links {
		seg.Links = append(seg.Links, result.Link{
			Source:        l.Source,
			Target:        l.Target,
			LogLikelihood: l.LogLikelihood,
			Bias:          l.Bias,
			Converged:     l.Converged,
			Iterations:    l.Iterations,
		})
	}
	return seg, nil
}
