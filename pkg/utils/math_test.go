package utils

import (
	"math"
	"testing"
)

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("InnerProduct = %f, want 32", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths should return 0, got %f", got)
	}
}

func TestL2Norm(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm = %f, want 5", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{3, 4}
	b := []float32{0.6, 0.8}
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-6 {
		t.Errorf("parallel vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, b); got != 0 {
		t.Errorf("zero vector: got %f", got)
	}
	// For unit vectors cosine equals the inner product.
	if math.Abs(CosineSimilarity(b, b)-InnerProduct(b, b)) > 1e-6 {
		t.Error("cosine of unit vectors should equal inner product")
	}
}
