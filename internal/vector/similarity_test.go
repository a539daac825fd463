package vector

import (
	"errors"
	"math"
	"testing"
)

func TestCosine_SelfAndOpposite(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	neg := make([]float32, len(v))
	for i, x := range v {
		neg[i] = -x
	}

	sim, err := Cosine(v, v)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim-1) > 1e-6 {
		t.Errorf("cosine(v,v) = %v, want ~1", sim)
	}

	sim, err = Cosine(v, neg)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim+1) > 1e-6 {
		t.Errorf("cosine(v,-v) = %v, want ~-1", sim)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	sim, err := Cosine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Errorf("cosine of orthogonal vectors = %v, want 0", sim)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_, err = Cosine(nil, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for empty vectors, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	if math.Abs(L2Norm(n)-1) > 1e-6 {
		t.Errorf("norm after Normalize = %v, want 1", L2Norm(n))
	}
	if v[0] != 3 || v[1] != 4 {
		t.Error("Normalize must not mutate its input")
	}

	zero := []float32{0, 0, 0}
	if got := Normalize(zero); L2Norm(got) != 0 {
		t.Errorf("Normalize(zero) = %v, want zero vector", got)
	}
}
