package decay

import (
	"math"
	"testing"
)

func TestApply_IdentityCases(t *testing.T) {
	for _, lambda := range []float64{0, 0.01, 0.02, 0.05, 1.5} {
		if got := Apply(0.8, 0, lambda); got != 0.8 {
			t.Errorf("Apply(0.8, 0, %v) = %v, want 0.8", lambda, got)
		}
	}
	for _, age := range []float64{0, 1, 30, 365, 10000} {
		if got := Apply(0.8, age, 0); got != 0.8 {
			t.Errorf("Apply(0.8, %v, 0) = %v, want 0.8", age, got)
		}
	}
}

func TestApply_NegativeAgeClamped(t *testing.T) {
	if got := Apply(1.0, -5, RateBalanced); got != 1.0 {
		t.Errorf("Apply with negative age = %v, want 1.0", got)
	}
}

func TestApply_Halving(t *testing.T) {
	hl := HalfLife(RateBalanced)
	got := Apply(1.0, hl, RateBalanced)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Apply(1, halfLife, lambda) = %v, want 0.5", got)
	}
}

func TestHalfLife_Balanced(t *testing.T) {
	got := HalfLife(0.02)
	if math.Abs(got-34.657359) > 1e-3 {
		t.Errorf("HalfLife(0.02) = %v, want ~34.66", got)
	}
}

func TestLambdaHalfLifeRoundTrip(t *testing.T) {
	for _, lambda := range []float64{RateSlow, RateBalanced, RateFast, 0.123} {
		got := Lambda(HalfLife(lambda))
		if math.Abs(got-lambda) > 1e-12 {
			t.Errorf("Lambda(HalfLife(%v)) = %v", lambda, got)
		}
	}
}

func TestLambda_NonPositiveHalfLife(t *testing.T) {
	if got := Lambda(0); got != 0 {
		t.Errorf("Lambda(0) = %v, want 0", got)
	}
	if got := Lambda(-3); got != 0 {
		t.Errorf("Lambda(-3) = %v, want 0", got)
	}
}

func TestFactor_Monotonic(t *testing.T) {
	prev := 1.1
	for _, age := range []float64{0, 1, 7, 30, 90, 365} {
		f := Factor(age, RateBalanced)
		if f <= 0 || f > 1 {
			t.Fatalf("Factor(%v) = %v, out of (0,1]", age, f)
		}
		if f >= prev {
			t.Fatalf("Factor not strictly decreasing at age %v: %v >= %v", age, f, prev)
		}
		prev = f
	}
}
