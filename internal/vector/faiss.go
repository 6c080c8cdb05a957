//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex is a flat squared-L2 index backed by FAISS IndexFlatL2.
// Labels are FAISS sequential ids, which equal insertion positions.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS IndexFlatL2 with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	var index *C.FaissIndexFlatL2
	ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions))
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}

	return &FAISSIndex{
		index:      (*C.FaissIndex)(index),
		dimensions: dimensions,
	}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors. Dimensions are checked before FAISS is touched.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	// Flatten vectors into contiguous array for FAISS
	n := len(vectors)
	flat := make([]float32, n*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: vector %d has %d components, expected %d", ErrDimensionMismatch, i, len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns the k nearest vectors by squared L2 distance, closest first.
// Slots FAISS cannot fill carry label -1.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d components, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return nil, nil
	}

	distances := make([]float32, k)
	labels := make([]int64, k)

	ret := C.faiss_Index_search(
		f.index,
		1, // nq
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Label: labels[i], Distance: distances[i]}
	}
	return hits, nil
}

// Count returns the number of vectors in the index.
func (f *FAISSIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Save writes the index with faiss_write_index_fname.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the index with the one stored at path.
// If the file does not exist, no error is returned and the index is unchanged.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("%w: failed to load FAISS index: %s", ErrCorruptState, faissLastError())
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, d, f.dimensions)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
