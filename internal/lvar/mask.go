// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

// Mask marks the stacked coefficients (m x m*p) that are held at zero.
type Mask struct {
	sources int
	order   int
	zero    []bool
}

// NewMask builds the structural zero mask.
// Input:
//   - m sources, order p, selfHistory p1 (self lags with index >= p1 are zero)
//   - eigenmodes: block size of a region; off-diagonal coefficients between
//     eigenmodes of one region are zero when eigenmodes > 1
//   - res: optional link restriction in region indices
//
// Returns:
//   - the mask, or an error if the restriction does not fit the regions
func NewMask(m, p, selfHistory, eigenmodes int, res *Restriction) (Mask, error) {
	if m <= 0 || p <= 0 {
		return Mask{}, fmt.Errorf("%w: %d sources, order %d", ssm.ErrDimension, m, p)
	}
	if eigenmodes <= 0 || m%eigenmodes != 0 {
		return Mask{}, fmt.Errorf("%w: %d sources not divisible into regions of %d", ssm.ErrDimension, m, eigenmodes)
	}
	if err := res.Validate(m / eigenmodes); err != nil {
		return Mask{}, err
	}

	mk := Mask{sources: m, order: p, zero: make([]bool, m*m*p)}
	for k := 0; k < p; k++ {
		for i := 0; i < m; i++ {
			// 1. Self history
			if k >= selfHistory {
				mk.set(i, k*m+i)
			}
			// 2. Cross-talk inside a region
			if eigenmodes > 1 {
				base := (i / eigenmodes) * eigenmodes
				for j := base; j < base+eigenmodes; j++ {
					if j != i {
						mk.set(i, k*m+j)
					}
				}
			}
		}
	}
	// 3. Link restriction
	if res != nil {
		for _, src := range res.Sources {
			for _, dst := range res.Targets {
				for u := 0; u < eigenmodes; u++ {
					for v := 0; v < eigenmodes; v++ {
						for k := 0; k < p; k++ {
							mk.set(dst*eigenmodes+u, k*m+src*eigenmodes+v)
						}
					}
				}
			}
		}
	}
	return mk, nil
}

func (mk Mask) set(i, j int) {
	mk.zero[i*mk.sources*mk.order+j] = true
}

// Zero reports whether coefficient (i, j) of the stacked matrix is held at zero.
func (mk Mask) Zero(i, j int) bool {
	return mk.zero[i*mk.sources*mk.order+j]
}

// Apply sets every masked coefficient of a to zero.
func (mk Mask) Apply(a *mat.Dense) {
	cols := mk.sources * mk.order
	for i := 0; i < mk.sources; i++ {
		for j := 0; j < cols; j++ {
			if mk.Zero(i, j) {
				a.Set(i, j, 0)
			}
		}
	}
}

// Free returns the unmasked column indices of row i.
func (mk Mask) Free(i int) []int {
	cols := mk.sources * mk.order
	out := make([]int, 0, cols)
	for j := 0; j < cols; j++ {
		if !mk.Zero(i, j) {
			out = append(out, j)
		}
	}
	return out
}
