package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// indexHeaderSize is the dimension and count header of a saved index, two uint32s.
const indexHeaderSize = 8

// MemoryIndex is an in-memory flat index using exact squared L2 search.
// Vectors are stored contiguously in insertion order.
type MemoryIndex struct {
	dimensions int
	data       []float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends vectors. Either all vectors are added or none is.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != m.dimensions {
			return fmt.Errorf("%w: vector %d has %d components, expected %d", ErrDimensionMismatch, i, len(vec), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vec := range vectors {
		m.data = append(m.data, vec...)
	}
	return nil
}

// Search returns the k nearest vectors by squared L2 distance, closest first.
// Ties keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d components, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.data) / m.dimensions
	if k <= 0 || n == 0 {
		return nil, nil
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		vec := m.data[i*m.dimensions : (i+1)*m.dimensions]
		hits[i] = Hit{Label: int64(i), Distance: SquaredL2(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > n {
		k = n
	}
	return hits[:k], nil
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) / m.dimensions
}

// Save persists the index to path. Directory is created if needed. Format: dimension (4), n (4),
// then n*dimension float32 values, all little-endian.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.data)/m.dimensions)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if _, err := w.Write(float32SliceToBytes(m.data)); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Sync()
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("%w: read dimensions: %v", ErrCorruptState, err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: read count: %v", ErrCorruptState, err)
	}
	if want := indexHeaderSize + int64(n)*int64(m.dimensions)*4; want != info.Size() {
		return fmt.Errorf("%w: header claims %d vectors (%d bytes), file has %d bytes", ErrCorruptState, n, want, info.Size())
	}
	buf := make([]byte, int(n)*m.dimensions*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: read vectors: %v", ErrCorruptState, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytesToFloat32Slice(buf)
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
