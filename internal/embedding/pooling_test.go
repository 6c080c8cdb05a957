package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100, // masked out
	}
	got := meanPool(hidden, []int64{1, 1, 0}, 2)
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("meanPool=%v, want [2 3]", got)
	}
	zero := meanPool(hidden, []int64{0, 0, 0}, 2)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("all-masked pool should be zero, got %v", zero)
	}
}

func TestNormalizeL2Slice(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2Slice(x)
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2Slice=%v", x)
	}
	z := []float32{0, 0}
	NormalizeL2Slice(z)
	if z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector changed: %v", z)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	vecs, err := e.EmbedBatch(ctx, []string{"hello", "goodbye", "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[2][i] {
			t.Fatal("same text should embed identically")
		}
	}
	var norm float64
	for _, v := range vecs[1] {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %v", norm)
	}
	if e.Dimensions() != 16 || len(vecs[1]) != 16 {
		t.Errorf("dimensions=%d len=%d", e.Dimensions(), len(vecs[1]))
	}
}

func TestMockEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
