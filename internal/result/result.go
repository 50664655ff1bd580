// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package result holds the outcome of a segmented link analysis and turns
// raw deviances into debiased connectivity statistics.
package result

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrEmpty is returned by queries on a result without segments.
var ErrEmpty = errors.New("result: no segments")

// Model summarizes the full model fitted on one segment.
type Model struct {
	// Stacked coefficients (m x m*p)
	A             *mat.Dense
	Q             []float64
	Lambda        float64
	LogLikelihood float64
	Iterations    int
	Converged     bool
	// Information criteria; zero unless the strength was cross-validated
	AIC float64
	BIC float64
}

// Link is one tested region pair.
type Link struct {
	Source        int
	Target        int
	LogLikelihood float64
	Bias          float64
	Converged     bool
	Iterations    int
}

// Segment is the link analysis of one contiguous piece of the recording.
// Matrices are indexed [target][source].
type Segment struct {
	Start int
	End   int
	// Raw deviance 2 (ll_full - ll_reduced)
	Deviance *mat.Dense
	// Bias of the full model; zero when no link was tested
	BiasFull float64
	// Bias of each reduced model; zero for untested pairs
	BiasReduced *mat.Dense
	Converged   [][]bool
	Links       []Link
	// Regions the links were drawn from
	Regions []int
	Full    Model
}

// Result is a complete analysis of one recording.
type Result struct {
	RunID     string
	CreatedAt time.Time
	Name      string

	Regions    int
	Channels   int
	Samples    int
	Order      int
	Eigenmodes int

	Segments []Segment

	Labels []string
	// Vertex indices of each region
	Vertices [][]int
	// Mixing matrix as used for the fit (channels x regions*eigenmodes)
	Forward *mat.Dense
	// Observation noise covariance multiplier
	NoiseMultiplier float64
	// Optional whitening matrix applied upstream
	Whitener *mat.Dense
}

// New returns an empty result with a fresh run id.
func New(name string) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Name:      name,
	}
}

// DegreesOfFreedom is the chi-square degrees of freedom of one link test,
// order times eigenmodes squared.
func (r *Result) DegreesOfFreedom() int {
	return r.Order * r.Eigenmodes * r.Eigenmodes
}

// AverageDebiased debiases every segment with fn and averages the results.
func (r *Result) AverageDebiased(fn DebiasFunc) (*mat.Dense, error) {
	if len(r.Segments) == 0 {
		return nil, ErrEmpty
	}
	if fn == nil {
		fn = Debias
	}
	var sum *mat.Dense
	for i, seg := range r.Segments {
		d := fn(seg.Deviance, seg.BiasFull, seg.BiasReduced)
		if sum == nil {
			sum = mat.DenseCopyOf(d)
			continue
		}
		if !sameDims(sum, d) {
			return nil, fmt.Errorf("result: segment %d deviance shape differs", i)
		}
		sum.Add(sum, d)
	}
	sum.Scale(1/float64(len(r.Segments)), sum)
	return sum, nil
}

// PValues returns the chi-square upper tail probability of every averaged
// debiased deviance with DegreesOfFreedom degrees of freedom. Diagonal
// entries are one. The values are uncorrected for multiple testing.
func (r *Result) PValues(fn DebiasFunc) (*mat.Dense, error) {
	avg, err := r.AverageDebiased(fn)
	if err != nil {
		return nil, err
	}
	df := r.DegreesOfFreedom()
	if df < 1 {
		return nil, fmt.Errorf("result: %d degrees of freedom", df)
	}
	chi2 := distuv.ChiSquared{K: float64(df)}
	n, _ := avg.Dims()
	p := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				p.Set(i, j, 1)
				continue
			}
			p.Set(i, j, chi2.Survival(avg.At(i, j)))
		}
	}
	return p, nil
}

// NotConverged counts the reduced fits, over all segments, that hit the
// iteration cap.
func (r *Result) NotConverged() int {
	n := 0
	for _, seg := range r.Segments {
		for _, l := range seg.Links {
			if !l.Converged {
				n++
			}
		}
	}
	return n
}

func sameDims(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}
