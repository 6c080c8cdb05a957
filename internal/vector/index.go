// Package vector provides the positional embedding index and the store that pairs it with segment metadata.
package vector

import "context"

// Index is a dense, append-only vector index addressed by insertion position.
// Implementations must validate every vector before mutating anything.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k hits ordered by ascending squared L2 distance.
	// A hit label is the insertion position of the vector, or -1 for an unfilled slot.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Count() int
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Type() string
	Close() error
}

// Hit is a single index search hit.
type Hit struct {
	Label    int64
	Distance float32
}
