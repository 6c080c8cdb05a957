// Package embedding turns text into fixed-dimension, L2-normalized vectors.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Embedder produces vector embeddings for text.
// EmbedBatch returns exactly one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

var (
	// ErrUnavailable is returned when a provider was not compiled in or cannot start.
	ErrUnavailable = errors.New("embedding provider unavailable")
	// ErrEmbeddingFailed wraps provider failures during inference.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}
