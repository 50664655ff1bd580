// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package simulate draws synthetic recordings from a latent VAR observed
// through a mixing matrix with white sensor noise.
package simulate

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Config describes the generating model.
type Config struct {
	// VAR order p
	Order int
	// Stacked coefficients (m x m*p)
	A *mat.Dense
	// Innovation variances (m)
	Q []float64
	// Mixing matrix (channels x m); drawn at random when nil
	F *mat.Dense
	// Number of channels when F is drawn
	Channels int
	// Sensor noise variance
	NoiseVar float64
	// Samples returned, after Burn discarded samples
	Samples int
	Burn    int
	Seed    int64
}

// Series is one simulated recording.
type Series struct {
	// Latent sources (samples x m)
	X *mat.Dense
	// Observations (samples x channels)
	Y *mat.Dense
	// Mixing matrix (channels x m)
	F *mat.Dense
	// Sensor noise covariance (channels x channels)
	R *mat.SymDense
}

// Run simulates the recording described by cfg.
// Returns:
//   - the simulated series
//   - error if the configuration is inconsistent
func Run(cfg Config) (*Series, error) {
	if cfg.A == nil || len(cfg.Q) == 0 {
		return nil, fmt.Errorf("simulate: coefficients and variances are required")
	}
	m := len(cfg.Q)
	p := cfg.Order
	if r, c := cfg.A.Dims(); p < 1 || r != m || c != m*p {
		return nil, fmt.Errorf("simulate: A is %dx%d, want %dx%d", r, c, m, m*p)
	}
	if cfg.Samples <= p {
		return nil, fmt.Errorf("simulate: need more than %d samples, got %d", p, cfg.Samples)
	}
	if cfg.NoiseVar < 0 {
		return nil, fmt.Errorf("simulate: negative noise variance %g", cfg.NoiseVar)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	// 1. Mixing matrix
	f := cfg.F
	if f == nil {
		if cfg.Channels < 1 {
			return nil, fmt.Errorf("simulate: channels must be positive when F is drawn")
		}
		f = mat.NewDense(cfg.Channels, m, nil)
		for i := 0; i < cfg.Channels; i++ {
			for j := 0; j < m; j++ {
				f.Set(i, j, rng.NormFloat64())
			}
		}
	} else if _, c := f.Dims(); c != m {
		return nil, fmt.Errorf("simulate: F has %d columns, want %d", c, m)
	}
	ny, _ := f.Dims()

	// 2. Latent VAR, t = 0 .. Burn+Samples-1, zero initial lags
	total := cfg.Burn + cfg.Samples
	x := mat.NewDense(total, m, nil)
	for t := 0; t < total; t++ {
		for eq := 0; eq < m; eq++ {
			val := math.Sqrt(cfg.Q[eq]) * rng.NormFloat64()
			for j := 1; j <= p && t-j >= 0; j++ {
				for k := 0; k < m; k++ {
					val += cfg.A.At(eq, (j-1)*m+k) * x.At(t-j, k)
				}
			}
			x.Set(t, eq, val)
		}
	}
	xs := mat.DenseCopyOf(x.Slice(cfg.Burn, total, 0, m))

	// 3. Observations
	var y mat.Dense
	y.Mul(xs, f.T())
	sd := math.Sqrt(cfg.NoiseVar)
	for t := 0; t < cfg.Samples; t++ {
		for c := 0; c < ny; c++ {
			y.Set(t, c, y.At(t, c)+sd*rng.NormFloat64())
		}
	}

	r := mat.NewSymDense(ny, nil)
	for c := 0; c < ny; c++ {
		r.SetSym(c, c, cfg.NoiseVar)
	}
	return &Series{X: xs, Y: &y, F: f, R: r}, nil
}

// TwoSource returns the configuration of a 2-source, 3-channel VAR(1) with
// self coefficients 0.5 and -0.4 and an optional 1 -> 2 coupling.
func TwoSource(coupling float64, samples int, seed int64) Config {
	a := mat.NewDense(2, 2, []float64{
		0.5, 0.0,
		coupling, -0.4,
	})
	f := mat.NewDense(3, 2, []float64{
		1.0, 0.1,
		0.2, 1.0,
		0.5, 0.5,
	})
	return Config{
		Order:    1,
		A:        a,
		Q:        []float64{1.0, 1.0},
		F:        f,
		NoiseVar: 0.1,
		Samples:  samples,
		Burn:     100,
		Seed:     seed,
	}
}
