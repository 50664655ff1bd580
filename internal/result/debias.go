// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package result

import "gonum.org/v1/gonum/mat"

// DebiasFunc turns a raw deviance matrix into a debiased one given the full
// model bias and the reduced model biases.
type DebiasFunc func(dev *mat.Dense, biasFull float64, biasReduced *mat.Dense) *mat.Dense

// Debias adds biasReduced - biasFull to every entry with a non-zero reduced
// bias, zeroes the diagonal and clamps negative values to zero. The inputs
// are not modified.
func Debias(dev *mat.Dense, biasFull float64, biasReduced *mat.Dense) *mat.Dense {
	d := mat.DenseCopyOf(dev)
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if br := biasReduced.At(i, j); br != 0 {
				d.Set(i, j, d.At(i, j)+br-biasFull)
			}
			if i == j || d.At(i, j) < 0 {
				d.Set(i, j, 0)
			}
		}
	}
	return d
}
