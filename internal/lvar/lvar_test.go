// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package lvar

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"latentgc/internal/simulate"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func twoSourceData(t *testing.T, coupling float64, samples int, seed int64) *simulate.Series {
	t.Helper()
	s, err := simulate.Run(simulate.TwoSource(coupling, samples, seed))
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	return s
}

// ============================================================================
// RESTRICTION TESTS
// ============================================================================

func TestParseRestriction(t *testing.T) {
	r, err := ParseRestriction("0, 1->2")
	if err != nil {
		t.Fatalf("ParseRestriction failed: %v", err)
	}
	if len(r.Sources) != 2 || r.Sources[1] != 1 || len(r.Targets) != 1 || r.Targets[0] != 2 {
		t.Errorf("parsed %+v", r)
	}
	if r.String() != "0,1->2" {
		t.Errorf("String() = %q", r.String())
	}

	bad := []string{"0-1", "a->1", "->1", "1->", "1->2->3", "-1->2"}
	for i, s := range bad {
		if _, err := ParseRestriction(s); !errors.Is(err, ErrRestriction) {
			t.Errorf("Test %d: %q gave %v, want ErrRestriction", i, s, err)
		}
	}
}

func TestRestrictionValidate(t *testing.T) {
	if err := NewLink(0, 3).Validate(3); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("expected ErrRegionOutOfRange, got %v", err)
	}
	if err := NewLink(0, 2).Validate(3); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	var none *Restriction
	if err := none.Validate(1); err != nil {
		t.Errorf("nil restriction: unexpected error %v", err)
	}
}

// ============================================================================
// MASK TESTS
// ============================================================================

func TestNewMaskSelfHistory(t *testing.T) {
	mk, err := NewMask(2, 2, 1, 1, nil)
	if err != nil {
		t.Fatalf("NewMask failed: %v", err)
	}
	if mk.Zero(0, 0) || mk.Zero(1, 1) {
		t.Errorf("first self lag should be free")
	}
	if !mk.Zero(0, 2) || !mk.Zero(1, 3) {
		t.Errorf("second self lag should be masked")
	}
	if mk.Zero(0, 1) || mk.Zero(1, 2) {
		t.Errorf("cross coefficients should be free")
	}

	mk, _ = NewMask(2, 1, 0, 1, nil)
	if !mk.Zero(0, 0) || !mk.Zero(1, 1) {
		t.Errorf("self history 0 should mask every self lag")
	}
}

func TestNewMaskEigenmodes(t *testing.T) {
	mk, err := NewMask(4, 1, 1, 2, NewLink(0, 1))
	if err != nil {
		t.Fatalf("NewMask failed: %v", err)
	}
	// cross-talk inside region 0
	if !mk.Zero(0, 1) || !mk.Zero(1, 0) {
		t.Errorf("eigenmode cross-talk should be masked")
	}
	// region 0 -> region 1 block
	for _, i := range []int{2, 3} {
		for _, j := range []int{0, 1} {
			if !mk.Zero(i, j) {
				t.Errorf("restricted coefficient (%d, %d) is free", i, j)
			}
		}
	}
	// region 1 -> region 0 stays free
	if mk.Zero(0, 2) || mk.Zero(1, 3) {
		t.Errorf("reverse direction should be free")
	}
	if got := len(mk.Free(2)); got != 1 {
		t.Errorf("row 2 has %d free coefficients, want 1", got)
	}
}

func TestNewMaskRejectsBadShapes(t *testing.T) {
	if _, err := NewMask(3, 1, 1, 2, nil); err == nil {
		t.Errorf("expected an error when sources do not split into regions")
	}
	if _, err := NewMask(4, 1, 1, 2, NewLink(0, 2)); !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("expected ErrRegionOutOfRange, got %v", err)
	}
}

// ============================================================================
// LAYOUT TESTS
// ============================================================================

func TestRavelUnravel(t *testing.T) {
	a := mat.NewDense(2, 4, []float64{
		1, 2, 5, 6,
		3, 4, 7, 8,
	})
	lags := Unravel(a, 2)
	if lags[1].At(1, 0) != 7 || lags[0].At(0, 1) != 2 {
		t.Errorf("Unravel put coefficients in the wrong lag")
	}
	if !mat.Equal(Ravel(lags), a) {
		t.Errorf("Ravel(Unravel(a)) != a")
	}
	if NormOne(a) != 36 {
		t.Errorf("NormOne = %v, want 36", NormOne(a))
	}
}

// ============================================================================
// M-STEP TESTS
// ============================================================================

func TestSoftThreshold(t *testing.T) {
	tests := []struct{ x, t, want float64 }{
		{3, 1, 2},
		{-3, 1, -2},
		{0.5, 1, 0},
		{-1, 1, 0},
	}
	for i, tt := range tests {
		if got := softThreshold(tt.x, tt.t); got != tt.want {
			t.Errorf("Test %d: softThreshold(%v, %v) = %v, want %v", i, tt.x, tt.t, got, tt.want)
		}
	}
}

func TestUpdateAUnpenalizedSolvesNormalEquations(t *testing.T) {
	st := stats{
		s1: mat.NewDense(2, 2, []float64{0.6, 0.1, 0.2, 0.5}),
		s2: mat.NewDense(2, 2, []float64{2.0, 0.3, 0.3, 1.0}),
		s3: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		n:  100,
	}
	mk, _ := NewMask(2, 1, 1, 1, nil)
	a := mat.NewDense(2, 2, nil)
	updateA(a, st, []float64{1, 1}, mk, 0, nil, 1, 1e-12)

	// a S2 = s1
	var got mat.Dense
	got.Mul(a, st.s2)
	if !mat.EqualApprox(&got, st.s1, 1e-8) {
		t.Errorf("a S2 = %v, want %v", mat.Formatted(&got), mat.Formatted(st.s1))
	}
}

func TestUpdateAPenaltyShrinksToZero(t *testing.T) {
	st := stats{
		s1: mat.NewDense(1, 1, []float64{0.3}),
		s2: mat.NewDense(1, 1, []float64{1}),
		s3: mat.NewDense(1, 1, []float64{1}),
		n:  10,
	}
	mk, _ := NewMask(1, 1, 1, 1, nil)
	a := mat.NewDense(1, 1, []float64{0.9})
	updateA(a, st, []float64{2}, mk, 0.2, nil, 1, 1e-10)
	// threshold lambda * q = 0.4 > 0.3
	if a.At(0, 0) != 0 {
		t.Errorf("coefficient = %v, want 0", a.At(0, 0))
	}
	updateA(a, st, []float64{2}, mk, 0, &Pair{Self: 0.1, Cross: 5}, 1, 1e-10)
	if !almostEqual(a.At(0, 0), 0.1, 1e-12) {
		t.Errorf("self penalty: coefficient = %v, want 0.1", a.At(0, 0))
	}
}

func TestUpdateQWithPrior(t *testing.T) {
	st := stats{
		s1: mat.NewDense(1, 1, []float64{0.5}),
		s2: mat.NewDense(1, 1, []float64{1}),
		s3: mat.NewDense(1, 1, []float64{1}),
		n:  10,
	}
	a := mat.NewDense(1, 1, []float64{0.5})
	q := []float64{1}
	// residual = 1 - 2*0.25 + 0.25 = 0.75
	change := updateQ(q, a, st, 0, 0)
	if !almostEqual(q[0], 0.75, 1e-12) || !almostEqual(change, 0.25, 1e-12) {
		t.Errorf("q = %v, change = %v", q[0], change)
	}
	q[0] = 1
	updateQ(q, a, st, 0.5, 0.25)
	if !almostEqual(q[0], 1.0/1.5, 1e-12) {
		t.Errorf("prior q = %v, want %v", q[0], 1.0/1.5)
	}
}

// ============================================================================
// FIT TESTS
// ============================================================================

func TestFitConflictingPenalty(t *testing.T) {
	s := twoSourceData(t, 0, 100, 1)
	est := NewEstimator(1, 1, 1)
	_, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{Lambda: 0.1, Pair: &Pair{Self: 0.1, Cross: 0.1}})
	if !errors.Is(err, ErrConflictingPenalty) {
		t.Errorf("expected ErrConflictingPenalty, got %v", err)
	}
	_, err = est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{Restriction: NewLink(0, 5)})
	if !errors.Is(err, ErrRegionOutOfRange) {
		t.Errorf("expected ErrRegionOutOfRange, got %v", err)
	}
}

func TestFitZeroSelfHistory(t *testing.T) {
	s := twoSourceData(t, 0.3, 400, 2)
	est := NewEstimator(2, 0, 1)
	est.MaxIter = 30

	checks := 0
	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{
		Lambda: 0.01,
		Observe: func(iter int, a *mat.Dense, _ []float64) {
			checks++
			for k := 0; k < 2; k++ {
				for i := 0; i < 2; i++ {
					if a.At(i, k*2+i) != 0 {
						t.Errorf("iteration %d: self lag %d of source %d = %v", iter, k, i, a.At(i, k*2+i))
					}
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if checks == 0 {
		t.Errorf("observer never called")
	}
	if fit.Model.A.At(0, 0) != 0 || fit.Model.A.At(1, 3) != 0 {
		t.Errorf("final self coefficients are not zero")
	}
}

func TestFitRestrictionKeepsBlockZero(t *testing.T) {
	s := twoSourceData(t, 0.3, 400, 3)
	est := NewEstimator(1, 1, 1)
	est.MaxIter = 30
	a0 := mat.NewDense(2, 2, []float64{0.5, 0, 0.3, -0.4})

	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{
		Lambda:      0.01,
		A0:          a0,
		Restriction: NewLink(0, 1),
		Observe: func(iter int, a *mat.Dense, _ []float64) {
			if a.At(1, 0) != 0 {
				t.Errorf("iteration %d: restricted coefficient = %v", iter, a.At(1, 0))
			}
		},
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if fit.Model.A.At(1, 0) != 0 {
		t.Errorf("restricted coefficient is %v", fit.Model.A.At(1, 0))
	}
	if a0.At(1, 0) != 0.3 {
		t.Errorf("Fit modified the caller's warm start")
	}
}

func TestFitLogLikelihoodIncreases(t *testing.T) {
	s := twoSourceData(t, 0.3, 600, 4)
	est := NewEstimator(1, 1, 1)
	est.MaxIter = 40

	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	lls := fit.Trace.LogLikelihood
	if len(lls) < 2 {
		t.Fatalf("only %d iterations recorded", len(lls))
	}
	if lls[len(lls)-1] <= lls[0] {
		t.Errorf("log-likelihood did not improve: %v -> %v", lls[0], lls[len(lls)-1])
	}
	for i := 1; i < len(lls); i++ {
		if lls[i] < lls[i-1]-1e-6*math.Abs(lls[i-1]) {
			t.Errorf("iteration %d: log-likelihood dropped from %v to %v", i, lls[i-1], lls[i])
		}
	}
	if len(fit.Trace.Discrepancy) != len(lls) || len(fit.Trace.CrossFit) != len(lls) {
		t.Errorf("trace lengths differ")
	}
}

func TestFitRecoversCoupling(t *testing.T) {
	s := twoSourceData(t, 0.3, 3000, 5)
	est := NewEstimator(1, 1, 1)

	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{Lambda: 0.001})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	a := fit.Model.A
	if !almostEqual(a.At(0, 0), 0.5, 0.15) || !almostEqual(a.At(1, 1), -0.4, 0.15) {
		t.Errorf("self coefficients %v, %v", a.At(0, 0), a.At(1, 1))
	}
	if !almostEqual(a.At(1, 0), 0.3, 0.15) {
		t.Errorf("coupling 1 -> 2 = %v, want about 0.3", a.At(1, 0))
	}
	if math.Abs(a.At(0, 1)) > 0.15 {
		t.Errorf("spurious coupling 2 -> 1 = %v", a.At(0, 1))
	}
	if r, c := fit.Sources.Dims(); r != 3000 || c != 2 {
		t.Errorf("Sources dims = (%d, %d)", r, c)
	}
}

func TestFitCancelled(t *testing.T) {
	s := twoSourceData(t, 0, 100, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEstimator(1, 1, 1).Fit(ctx, s.Y, s.F, s.R, FitOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFitIterationCapClearsConverged(t *testing.T) {
	s := twoSourceData(t, 0.3, 200, 7)
	est := NewEstimator(1, 1, 1)
	est.MaxIter = 2
	est.RelTol = 1e-14
	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if fit.Converged || fit.Iterations != 2 {
		t.Errorf("Converged = %v after %d iterations", fit.Converged, fit.Iterations)
	}
}

func TestFitLogLikelihoodMatchesReturnedModel(t *testing.T) {
	s := twoSourceData(t, 0.3, 200, 9)
	for _, maxIter := range []int{1, 3, 200} {
		est := NewEstimator(1, 1, 1)
		est.MaxIter = maxIter
		fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{})
		if err != nil {
			t.Fatalf("MaxIter %d: Fit failed: %v", maxIter, err)
		}
		ll, err := fit.Evaluate(s.Y)
		if err != nil {
			t.Fatalf("MaxIter %d: Evaluate failed: %v", maxIter, err)
		}
		if !almostEqual(fit.LogLikelihood, ll, 1e-9*math.Abs(ll)) {
			t.Errorf("MaxIter %d (converged %v): LogLikelihood = %v, model evaluates to %v",
				maxIter, fit.Converged, fit.LogLikelihood, ll)
		}
	}
}

// ============================================================================
// DERIVED QUERY TESTS
// ============================================================================

func TestInformationCriterion(t *testing.T) {
	s := twoSourceData(t, 0.3, 300, 8)
	est := NewEstimator(1, 1, 1)
	est.MaxIter = 20
	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{Lambda: 0.01})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	df := float64(fit.DegreesOfFreedom())
	aic, _ := fit.InformationCriterion(AIC)
	bic, _ := fit.InformationCriterion(BIC)
	if !almostEqual(aic, (2*df-2*fit.LogLikelihood)/300, 1e-12) {
		t.Errorf("AIC = %v", aic)
	}
	if !almostEqual(bic, (math.Log(300)*df-2*fit.LogLikelihood)/300, 1e-12) {
		t.Errorf("BIC = %v", bic)
	}
}

func TestDerivedQueries(t *testing.T) {
	s := twoSourceData(t, 0.3, 300, 9)
	est := NewEstimator(1, 1, 1)
	est.MaxIter = 20
	fit, err := est.Fit(context.Background(), s.Y, s.F, s.R, FitOptions{Lambda: 0.01})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	ll, err := fit.Evaluate(s.Y)
	if err != nil || math.IsNaN(ll) {
		t.Errorf("Evaluate = %v, %v", ll, err)
	}
	if _, err := fit.Discrepancy(s.Y); err != nil {
		t.Errorf("Discrepancy failed: %v", err)
	}
	cv, err := fit.CrossValidation(s.Y)
	if err != nil || !(cv < 0) {
		t.Errorf("CrossValidation = %v, %v", cv, err)
	}
	pred, err := fit.Predict(s.Y)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if r, c := pred.Dims(); r != 300 || c != 3 {
		t.Errorf("Predict dims = (%d, %d)", r, c)
	}
	bias, err := fit.Bias(s.Y)
	if err != nil || bias > 0 {
		t.Errorf("Bias = %v, %v; want non-positive", bias, err)
	}
	if lags := fit.Lags(); len(lags) != 1 {
		t.Errorf("Lags returned %d matrices", len(lags))
	}
}

func TestQuadInverseEigenFallback(t *testing.T) {
	h := mat.NewSymDense(2, []float64{2, 0, 0, 0})
	l := mat.NewVecDense(2, []float64{2, 5})
	// singular H: only the positive eigenvalue contributes
	if got := quadInverse(h, l); !almostEqual(got, 2, 1e-12) {
		t.Errorf("quadInverse = %v, want 2", got)
	}
	h = mat.NewSymDense(2, []float64{2, 0, 0, 4})
	if got := quadInverse(h, l); !almostEqual(got, 2+25.0/4, 1e-12) {
		t.Errorf("quadInverse = %v, want %v", got, 2+25.0/4)
	}
}
