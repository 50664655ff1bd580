// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package simulate

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestRunShapes(t *testing.T) {
	s, err := Run(TwoSource(0.3, 400, 1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r, c := s.X.Dims(); r != 400 || c != 2 {
		t.Errorf("X dims = (%d, %d)", r, c)
	}
	if r, c := s.Y.Dims(); r != 400 || c != 3 {
		t.Errorf("Y dims = (%d, %d)", r, c)
	}
	if s.R.At(1, 1) != 0.1 {
		t.Errorf("R diagonal = %v, want 0.1", s.R.At(1, 1))
	}
}

func TestRunDeterministic(t *testing.T) {
	a, _ := Run(TwoSource(0.3, 100, 7))
	b, _ := Run(TwoSource(0.3, 100, 7))
	if !mat.Equal(a.Y, b.Y) {
		t.Errorf("same seed produced different observations")
	}
	c, _ := Run(TwoSource(0.3, 100, 8))
	if mat.Equal(a.Y, c.Y) {
		t.Errorf("different seeds produced identical observations")
	}
}

func TestRunLagOneCorrelation(t *testing.T) {
	s, err := Run(TwoSource(0.0, 5000, 3))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	x0 := mat.Col(nil, 0, s.X)
	corr := stat.Correlation(x0[1:], x0[:len(x0)-1], nil)
	if corr < 0.4 || corr > 0.6 {
		t.Errorf("lag-one autocorrelation of source 0 = %v, want about 0.5", corr)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := TwoSource(0, 10, 1)
	cfg.Q = []float64{1}
	if _, err := Run(cfg); err == nil {
		t.Errorf("expected an error for mismatched Q")
	}
	cfg = TwoSource(0, 1, 1)
	if _, err := Run(cfg); err == nil {
		t.Errorf("expected an error for too few samples")
	}
}
