package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory exact search. Good for small to medium collections.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS flat L2 index.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty index of the specified type.
// Supported types: "memory" (default), "faiss".
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
