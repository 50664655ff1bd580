// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package linktest

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

// Candidate is a directed region pair to test.
type Candidate struct {
	Source int
	Target int
}

func (c Candidate) String() string {
	return fmt.Sprintf("%d->%d", c.Source, c.Target)
}

// PowerRegions ranks regions by the power of their smoothed sources and keeps
// the smallest leading set whose cumulative share exceeds varThr. With
// varThr >= 1 every region is returned in index order.
// Input:
//   - x: smoothed sources (samples x m)
//   - eigenmodes: sources per region
//   - varThr: cumulative power share in (0, 1]
//
// Returns:
//   - region indices, strongest first when filtered
func PowerRegions(x mat.Matrix, eigenmodes int, varThr float64) ([]int, error) {
	_, m := x.Dims()
	if eigenmodes < 1 || m%eigenmodes != 0 {
		return nil, fmt.Errorf("%w: %d sources not divisible into regions of %d", ssm.ErrDimension, m, eigenmodes)
	}
	nr := m / eigenmodes
	if varThr >= 1 {
		out := make([]int, nr)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	// 1. Power per region
	power := make([]float64, nr)
	for j := 0; j < m; j++ {
		col := mat.Col(nil, j, x)
		power[j/eigenmodes] += floats.Dot(col, col)
	}

	// 2. Rank, strongest first
	idx := make([]int, nr)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return power[idx[a]] > power[idx[b]] })

	// 3. Smallest prefix whose cumulative share exceeds varThr
	ranked := make([]float64, nr)
	for i, r := range idx {
		ranked[i] = power[r]
	}
	cum := floats.CumSum(make([]float64, nr), ranked)
	total := cum[nr-1]
	keep := nr
	for i, c := range cum {
		if c/total > varThr {
			keep = i + 1
			break
		}
	}
	return idx[:keep], nil
}

// Candidates returns the ordered region pairs (source outer, target inner)
// drawn from regions, without self pairs. A pair is skipped when its
// cross-coefficient mass is below factor times the target's self mass, where
// the mass of a block is sum over lags of |A[t,s]| q_s. A factor of 0 keeps
// every pair.
func Candidates(a *mat.Dense, q []float64, order int, regions []int, eigenmodes int, factor float64) ([]Candidate, error) {
	m := len(q)
	if r, c := a.Dims(); r != m || c != m*order {
		return nil, fmt.Errorf("%w: A is %dx%d, want %dx%d", ssm.ErrDimension, r, c, m, m*order)
	}
	if eigenmodes < 1 || m%eigenmodes != 0 {
		return nil, fmt.Errorf("%w: %d sources not divisible into regions of %d", ssm.ErrDimension, m, eigenmodes)
	}
	nr := m / eigenmodes
	for _, r := range regions {
		if r < 0 || r >= nr {
			return nil, fmt.Errorf("%w: region %d not in [0, %d)", ssm.ErrDimension, r, nr)
		}
	}

	// Source-weighted absolute coefficient mass, summed over lags.
	mass := mat.NewDense(m, m, nil)
	for t := 0; t < m; t++ {
		for s := 0; s < m; s++ {
			v := 0.0
			for k := 0; k < order; k++ {
				v += math.Abs(a.At(t, k*m+s))
			}
			mass.Set(t, s, v*q[s])
		}
	}
	block := func(target, source int) float64 {
		b := mass.Slice(target*eigenmodes, (target+1)*eigenmodes, source*eigenmodes, (source+1)*eigenmodes)
		return mat.Sum(b)
	}

	var out []Candidate
	for _, src := range regions {
		for _, dst := range regions {
			if src == dst {
				continue
			}
			if block(dst, src) < factor*block(dst, dst) {
				continue
			}
			out = append(out, Candidate{Source: src, Target: dst})
		}
	}
	return out, nil
}
