// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package cvpath

import "fmt"

// Split is one forward-chaining fold: train on [0, TestStart), test on
// [TestStart, TestEnd).
type Split struct {
	TestStart int
	TestEnd   int
}

// Train returns the length of the training prefix.
func (s Split) Train() int { return s.TestStart }

// TimeSeriesSplit returns k forward-chaining folds over n samples. Every test
// window holds n/(k+1) samples and the windows tile the end of the series.
func TimeSeriesSplit(n, k int) ([]Split, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", ErrFolds, k)
	}
	if k+1 > n {
		return nil, fmt.Errorf("%w: %d folds for %d samples", ErrFolds, k, n)
	}
	size := n / (k + 1)
	splits := make([]Split, k)
	start := n - k*size
	for i := range splits {
		splits[i] = Split{TestStart: start, TestEnd: start + size}
		start += size
	}
	return splits, nil
}
