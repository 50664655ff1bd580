// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"latentgc/internal/ssm"
)

const coordinateMaxIter = 1000

// stats holds the second-order expectations the M-step needs.
type stats struct {
	// E[x_t x_{t-1}'] over current sources and the lagged state (m x m*p)
	s1 *mat.Dense
	// E[x_{t-1} x_{t-1}'] over the lagged state (m*p x m*p)
	s2 *mat.Dense
	// E[x_t x_t'] over current sources (m x m)
	s3 *mat.Dense
	// Effective sample count T - p
	n int
}

// sufficientStats averages the smoothed second moments over t = p..T-1.
// The steady-state lag-one cross covariance is B times the smoothed covariance.
func sufficientStats(sm *ssm.Smoothed, m, p int) stats {
	t, dx := sm.X.Dims()
	n := t - p

	cur := sm.X.Slice(p, t, 0, m)
	lag := sm.X.Slice(p-1, t-1, 0, dx)

	s1 := mat.NewDense(m, dx, nil)
	s1.Mul(cur.T(), lag)
	s1.Scale(1/float64(n), s1)
	var cross mat.Dense
	cross.Mul(sm.Gain, sm.Smoothed)
	s1.Add(s1, cross.Slice(0, dx, 0, m).T())

	s2 := mat.NewDense(dx, dx, nil)
	s2.Mul(lag.T(), lag)
	s2.Scale(1/float64(n), s2)
	s2.Add(s2, sm.Smoothed)

	s3 := mat.NewDense(m, m, nil)
	s3.Mul(cur.T(), cur)
	s3.Scale(1/float64(n), s3)
	s3.Add(s3, sm.Smoothed.SliceSym(0, m))

	return stats{s1: s1, s2: s2, s3: s3, n: n}
}

// penaltyFor returns the L1 strength applied to coefficient (i, j).
func penaltyFor(lambda float64, pair *Pair, i, j, m, eigenmodes int) float64 {
	if pair == nil {
		return lambda
	}
	if (j%m)/eigenmodes == i/eigenmodes {
		return pair.Self
	}
	return pair.Cross
}

// softThreshold returns sign(x) * max(|x| - t, 0).
func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

// updateA runs cyclic coordinate descent on every row of a, minimising
//
//	(a_i S2 a_i' - 2 a_i s1_i') / (2 q_i) + sum_j lambda_ij |a_ij|
//
// over the unmasked coordinates. It returns the number of sweeps used.
func updateA(a *mat.Dense, st stats, q []float64, mk Mask, lambda float64, pair *Pair, eigenmodes int, tol float64) int {
	m, _ := a.Dims()
	sweeps := 0
	free := make([][]int, m)
	for i := range free {
		free[i] = mk.Free(i)
	}

	for sweeps < coordinateMaxIter {
		sweeps++
		num, den := 0.0, 0.0
		for i := 0; i < m; i++ {
			row := a.RawRowView(i)
			s1 := st.s1.RawRowView(i)
			for _, k := range free[i] {
				s2k := st.s2.RawRowView(k)
				hkk := s2k[k]
				if hkk <= 0 {
					continue
				}
				// residual correlation excluding coordinate k
				rho := s1[k] - floats.Dot(s2k, row) + hkk*row[k]
				v := softThreshold(rho, penaltyFor(lambda, pair, i, k, m, eigenmodes)*q[i]) / hkk
				d := v - row[k]
				num += d * d
				den += row[k] * row[k]
				row[k] = v
			}
		}
		change := 1.0
		if den > 0 {
			change = math.Sqrt(num / den)
		} else if num == 0 {
			change = 0
		}
		if change < tol {
			break
		}
	}
	return sweeps
}

// residualVariance returns s3_ii - 2 a_i s1_i' + a_i S2 a_i'.
func residualVariance(a *mat.Dense, st stats, i int) float64 {
	row := a.RawRowView(i)
	var s2a mat.VecDense
	s2a.MulVec(st.s2, mat.NewVecDense(len(row), row))
	return st.s3.At(i, i) - 2*floats.Dot(row, st.s1.RawRowView(i)) + floats.Dot(row, s2a.RawVector().Data)
}

// updateQ writes the closed-form diagonal innovation variances into q and
// returns the relative change ||q_new - q_old|| / ||q_old||. alpha and beta
// are the prior parameters already rescaled by the effective sample count.
func updateQ(q []float64, a *mat.Dense, st stats, alpha, beta float64) float64 {
	old := append([]float64(nil), q...)
	for i := range q {
		q[i] = (residualVariance(a, st, i) + beta) / (1 + alpha)
	}
	den := floats.Norm(old, 2)
	if den == 0 {
		return math.Inf(1)
	}
	return floats.Distance(q, old, 2) / den
}

// discrepancy is the expected complete-data log-likelihood of the latent
// process at (a, q), given the sufficient statistics.
func discrepancy(a *mat.Dense, q []float64, st stats) float64 {
	val := 0.0
	for i := range q {
		val -= residualVariance(a, st, i)/q[i] + math.Log(q[i])
	}
	return 0.5 * float64(st.n) * val
}

// crossFit is the log-likelihood of the smoothed means under the VAR (a, q).
func crossFit(x *mat.Dense, a *mat.Dense, q []float64, m, p int) float64 {
	t, dx := x.Dims()
	n := t - p
	lag := x.Slice(p-1, t-1, 0, dx)
	var fit mat.Dense
	fit.Mul(lag, a.T())

	val := 0.0
	for i := 0; i < m; i++ {
		val -= 0.5 * float64(n) * math.Log(q[i])
	}
	for s := 0; s < n; s++ {
		for i := 0; i < m; i++ {
			d := x.At(s+p, i) - fit.At(s, i)
			val -= 0.5 * d * d / q[i]
		}
	}
	return val
}
