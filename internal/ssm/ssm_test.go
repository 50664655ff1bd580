// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package ssm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// testModel returns a two-source VAR(2) seen through three channels.
func testModel() Model {
	a := mat.NewDense(2, 4, []float64{
		0.5, 0.0, -0.2, 0.0,
		0.3, 0.4, 0.0, -0.1,
	})
	f := mat.NewDense(3, 2, []float64{
		1.0, 0.2,
		0.4, 1.0,
		0.3, 0.3,
	})
	r := mat.NewSymDense(3, []float64{
		0.5, 0, 0,
		0, 0.5, 0,
		0, 0, 0.5,
	})
	return Model{A: a, F: f, Q: []float64{1.0, 0.8}, R: r, Order: 2}
}

// simulateObservations draws t samples from the model with a fixed seed.
func simulateObservations(md Model, t int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	m, p := md.Sources(), md.Order
	ny, _ := md.F.Dims()
	x := mat.NewDense(t, m, nil)
	y := mat.NewDense(t, ny, nil)
	for i := 0; i < t; i++ {
		for j := 0; j < m; j++ {
			v := math.Sqrt(md.Q[j]) * rng.NormFloat64()
			for k := 0; k < p; k++ {
				if i-k-1 < 0 {
					continue
				}
				for l := 0; l < m; l++ {
					v += md.A.At(j, k*m+l) * x.At(i-k-1, l)
				}
			}
			x.Set(i, j, v)
		}
		for c := 0; c < ny; c++ {
			v := math.Sqrt(md.R.At(c, c)) * rng.NormFloat64()
			for j := 0; j < m; j++ {
				v += md.F.At(c, j) * x.At(i, j)
			}
			y.Set(i, c, v)
		}
	}
	return y
}

// riccatiResidual returns the max abs entry of the DARE residual at p.
func riccatiResidual(sys System, p *mat.SymDense) float64 {
	next, _, err := riccatiStep(sys, p)
	if err != nil {
		return math.Inf(1)
	}
	var d mat.Dense
	d.Sub(next, p)
	return mat.Norm(&d, math.Inf(1))
}

// ============================================================================
// RICCATI TESTS
// ============================================================================

func TestSolveRiccatiScalar(t *testing.T) {
	sys := System{
		A: mat.NewDense(1, 1, []float64{0.9}),
		F: mat.NewDense(1, 1, []float64{1}),
		Q: mat.NewSymDense(1, []float64{1}),
		R: mat.NewSymDense(1, []float64{1}),
	}
	p, err := SolveRiccati(sys)
	if err != nil {
		t.Fatalf("SolveRiccati failed: %v", err)
	}
	// P^2 - 0.81 P - 1 = 0
	want := (0.81 + math.Sqrt(0.81*0.81+4)) / 2
	if !almostEqual(p.At(0, 0), want, 1e-9) {
		t.Errorf("P = %v, want %v", p.At(0, 0), want)
	}
}

func TestRiccatiVariantsAgree(t *testing.T) {
	sys, err := testModel().Companion()
	if err != nil {
		t.Fatalf("Companion failed: %v", err)
	}

	variants := []struct {
		name  string
		solve func() (*mat.SymDense, error)
	}{
		{"doubling", func() (*mat.SymDense, error) { return solveDoubling(sys, false) }},
		{"doubling-balanced", func() (*mat.SymDense, error) { return solveDoubling(sys, true) }},
		{"iteration-stabilizing", func() (*mat.SymDense, error) { return solveFixedPoint(sys, true) }},
		{"iteration", func() (*mat.SymDense, error) { return solveFixedPoint(sys, false) }},
	}

	ref, err := SolveRiccati(sys)
	if err != nil {
		t.Fatalf("SolveRiccati failed: %v", err)
	}
	for _, v := range variants {
		p, err := v.solve()
		if err != nil {
			t.Errorf("%s: unexpected error %v", v.name, err)
			continue
		}
		if res := riccatiResidual(sys, p); res > 1e-8 {
			t.Errorf("%s: residual %g", v.name, res)
		}
		if !mat.EqualApprox(p, ref, 1e-7) {
			t.Errorf("%s: solution differs from chain result", v.name)
		}
	}
}

func TestRiccatiChainTriggers(t *testing.T) {
	singular := fmt.Errorf("step: %w", ErrSingular)
	tests := []struct {
		row  int
		prev error
		want bool
	}{
		{1, singular, true},
		{1, ErrNotConverged, false},
		{2, ErrNotConverged, true},
		{2, nil, false},
		{3, ErrNotStabilizing, true},
		{3, fmt.Errorf("x: %w", ErrNotConverged), true},
		{3, ErrSingular, false},
	}
	for i, tt := range tests {
		if got := riccatiChain[tt.row].when(tt.prev); got != tt.want {
			t.Errorf("Test %d: row %d trigger on %v = %v, want %v", i, tt.row, tt.prev, got, tt.want)
		}
	}
}

func TestSolveRiccatiRejectsBadShapes(t *testing.T) {
	sys := System{
		A: mat.NewDense(2, 2, nil),
		F: mat.NewDense(1, 3, nil),
		Q: mat.NewSymDense(2, nil),
		R: mat.NewSymDense(1, []float64{1}),
	}
	if _, err := SolveRiccati(sys); !errors.Is(err, ErrDimension) {
		t.Errorf("expected ErrDimension, got %v", err)
	}
}

// ============================================================================
// LYAPUNOV TESTS
// ============================================================================

func TestSolveLyapunovResidual(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0.6, 0.2, -0.1, 0.5})
	q := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 2})
	x, err := SolveLyapunov(a, q)
	if err != nil {
		t.Fatalf("SolveLyapunov failed: %v", err)
	}
	var axa, tmp mat.Dense
	tmp.Mul(a, x)
	axa.Mul(&tmp, a.T())
	axa.Add(&axa, q)
	if !mat.EqualApprox(&axa, x, 1e-10) {
		t.Errorf("X != A X A' + Q")
	}
}

func TestSolveLyapunovUnstable(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{1.5})
	q := mat.NewSymDense(1, []float64{1})
	if _, err := SolveLyapunov(a, q); !errors.Is(err, ErrNotConverged) {
		t.Errorf("expected ErrNotConverged, got %v", err)
	}
}

// ============================================================================
// MODEL TESTS
// ============================================================================

func TestCompanionLayout(t *testing.T) {
	md := testModel()
	sys, err := md.Companion()
	if err != nil {
		t.Fatalf("Companion failed: %v", err)
	}
	dx, ny := sys.Dims()
	if dx != 4 || ny != 3 {
		t.Fatalf("Dims = (%d, %d), want (4, 3)", dx, ny)
	}
	for j := 0; j < 4; j++ {
		if sys.A.At(0, j) != md.A.At(0, j) || sys.A.At(1, j) != md.A.At(1, j) {
			t.Errorf("top block column %d not copied", j)
		}
	}
	if sys.A.At(2, 0) != 1 || sys.A.At(3, 1) != 1 || sys.A.At(2, 2) != 0 {
		t.Errorf("shift block is wrong")
	}
	if sys.F.At(0, 2) != 0 || sys.F.At(1, 1) != 1 {
		t.Errorf("padded mixing matrix is wrong")
	}
	if sys.Q.At(1, 1) != 0.8 || sys.Q.At(2, 2) != 0 {
		t.Errorf("innovation covariance is wrong")
	}
}

func TestModelValidate(t *testing.T) {
	md := testModel()
	md.Q = []float64{1, 0}
	if err := md.Validate(); !errors.Is(err, ErrInvalidQ) {
		t.Errorf("zero q: expected ErrInvalidQ, got %v", err)
	}
	md = testModel()
	md.Order = 3
	if err := md.Validate(); !errors.Is(err, ErrDimension) {
		t.Errorf("wrong order: expected ErrDimension, got %v", err)
	}
}

// ============================================================================
// SMOOTHER TESTS
// ============================================================================

func TestSmoothPredictionStartsAtZero(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 200, 1)

	out, err := Smooth(y, sys, nil, Options{})
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	for j := 0; j < 4; j++ {
		if out.Pred.At(0, j) != 0 {
			t.Errorf("Pred[0][%d] = %v, want 0", j, out.Pred.At(0, j))
		}
	}
	for i := 0; i < 4; i++ {
		if out.Smoothed.At(i, i) <= 0 {
			t.Errorf("smoothed covariance diag %d = %v", i, out.Smoothed.At(i, i))
		}
		// smoothing never increases the marginal error variance
		if out.Smoothed.At(i, i) > out.Filtered.At(i, i)+1e-9 {
			t.Errorf("smoothed variance %d exceeds filtered", i)
		}
	}
	if math.IsNaN(out.LogLikelihood) || math.IsInf(out.LogLikelihood, 0) {
		t.Errorf("unexpected log-likelihood %v", out.LogLikelihood)
	}
}

func TestSmoothReusesTrajectory(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 50, 2)
	tr := NewTrajectory(50, 4)

	out, err := Smooth(y, sys, tr, Options{})
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	if out.X != tr.X || out.Pred != tr.Pred {
		t.Errorf("Smooth did not write into the supplied trajectory")
	}
}

func TestSmoothBLASMatchesVecDense(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 150, 3)

	plain, err := Smooth(y, sys, nil, Options{})
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	fast, err := Smooth(y, sys, nil, Options{UseBLAS: true})
	if err != nil {
		t.Fatalf("Smooth (BLAS) failed: %v", err)
	}
	if !almostEqual(plain.LogLikelihood, fast.LogLikelihood, 1e-8) {
		t.Errorf("log-likelihood %v vs %v", plain.LogLikelihood, fast.LogLikelihood)
	}
	if !mat.EqualApprox(plain.X, fast.X, 1e-10) {
		t.Errorf("smoothed states differ between evaluation paths")
	}

	cv1, err1 := CrossValidate(y, sys, Options{})
	cv2, err2 := CrossValidate(y, sys, Options{UseBLAS: true})
	if err1 != nil || err2 != nil {
		t.Fatalf("CrossValidate failed: %v %v", err1, err2)
	}
	if !almostEqual(cv1, cv2, 1e-9*math.Abs(cv1)) {
		t.Errorf("cross-validation %v vs %v", cv1, cv2)
	}
}

func TestLogLikelihoodMatchesSmooth(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 120, 4)

	out, err := Smooth(y, sys, nil, Options{})
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	ll, err := LogLikelihood(y, sys, Options{})
	if err != nil {
		t.Fatalf("LogLikelihood failed: %v", err)
	}
	if !almostEqual(ll, out.LogLikelihood, 1e-9) {
		t.Errorf("LogLikelihood = %v, Smooth = %v", ll, out.LogLikelihood)
	}
}

func TestPredictShapeAndFirstRow(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 80, 5)

	pred, err := Predict(y, sys, Options{})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	r, c := pred.Dims()
	if r != 80 || c != 3 {
		t.Fatalf("Predict dims = (%d, %d), want (80, 3)", r, c)
	}
	for j := 0; j < c; j++ {
		if pred.At(0, j) != 0 {
			t.Errorf("first prediction row is not zero")
		}
	}
}

func TestCrossValidateIsNegative(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := simulateObservations(md, 100, 6)
	cv, err := CrossValidate(y, sys, Options{})
	if err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}
	if !(cv < 0) {
		t.Errorf("CrossValidate = %v, want negative", cv)
	}
}

func TestSmoothRejectsChannelMismatch(t *testing.T) {
	md := testModel()
	sys, _ := md.Companion()
	y := mat.NewDense(10, 2, nil)
	if _, err := Smooth(y, sys, nil, Options{}); !errors.Is(err, ErrDimension) {
		t.Errorf("expected ErrDimension, got %v", err)
	}
}
