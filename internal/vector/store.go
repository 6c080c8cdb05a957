package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsukeru/internal/models"
)

const (
	indexSuffix    = ".index"
	metadataSuffix = ".metadata.json"
)

// IndexPath returns the path of the binary index artifact for prefix.
func IndexPath(prefix string) string { return prefix + indexSuffix }

// MetadataPath returns the path of the metadata log artifact for prefix.
func MetadataPath(prefix string) string { return prefix + metadataSuffix }

// Store pairs a positional Index with a metadata log. Entry i of the log
// describes the vector at position i, so len(metadata) == index.Count() always holds.
// Add, Save and Load are exclusive; Search and Count may run concurrently.
type Store struct {
	mu         sync.RWMutex
	indexType  string
	dimensions int
	index      Index
	metadata   []models.MetadataEntry
	perVideo   map[string]int
	logger     *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store backed by an index of indexType and dimension.
func NewStore(indexType string, dimensions int, opts ...StoreOption) (*Store, error) {
	index, err := NewIndex(indexType, dimensions)
	if err != nil {
		return nil, err
	}
	s := &Store{
		indexType:  index.Type(),
		dimensions: dimensions,
		index:      index,
		metadata:   make([]models.MetadataEntry, 0),
		perVideo:   make(map[string]int),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dimensions returns the fixed vector dimension.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Type returns the backing index type.
func (s *Store) Type() string {
	return s.indexType
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// Add appends vectors and their metadata in order. Nothing is added unless every
// vector has the store dimension and the two slices have equal length.
func (s *Store) Add(ctx context.Context, vectors [][]float32, entries []models.MetadataEntry) error {
	if len(vectors) != len(entries) {
		return fmt.Errorf("%w: %d vectors, %d entries", ErrLengthMismatch, len(vectors), len(entries))
	}
	for i, vec := range vectors {
		if len(vec) != s.dimensions {
			return fmt.Errorf("%w: vector %d has %d components, expected %d", ErrDimensionMismatch, i, len(vec), s.dimensions)
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Add(ctx, vectors); err != nil {
		return fmt.Errorf("failed to add vectors: %w", err)
	}
	s.metadata = append(s.metadata, entries...)
	for _, e := range entries {
		s.perVideo[e.VideoID]++
	}
	return nil
}

// VideoCount returns the number of records stored for videoID.
func (s *Store) VideoCount(videoID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perVideo[videoID]
}

// Search returns up to topK records nearest to query, closest first. Score is the
// raw squared L2 distance. Hits that do not map to a stored record are dropped.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]models.QueryResult, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d components, expected %d", ErrDimensionMismatch, len(query), s.dimensions)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]models.QueryResult, 0)
	if len(s.metadata) == 0 {
		return results, nil
	}
	hits, err := s.index.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	for _, h := range hits {
		if h.Label < 0 || h.Label >= int64(len(s.metadata)) {
			continue
		}
		results = append(results, models.NewQueryResult(s.metadata[h.Label], float64(h.Distance)))
	}
	return results, nil
}

// Save writes {prefix}.index and {prefix}.metadata.json. Each artifact is written to a
// temporary file and renamed into place. The in-memory state is never modified.
func (s *Store) Save(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return fmt.Errorf("%w: create store dir: %v", ErrIO, err)
	}

	indexPath := IndexPath(prefix)
	if err := s.index.Save(indexPath + ".tmp"); err != nil {
		_ = os.Remove(indexPath + ".tmp")
		return fmt.Errorf("%w: write index: %v", ErrIO, err)
	}
	data, err := json.Marshal(s.metadata)
	if err != nil {
		_ = os.Remove(indexPath + ".tmp")
		return fmt.Errorf("%w: encode metadata: %v", ErrIO, err)
	}
	metaPath := MetadataPath(prefix)
	if err := os.WriteFile(metaPath+".tmp", data, 0644); err != nil {
		_ = os.Remove(indexPath + ".tmp")
		return fmt.Errorf("%w: write metadata: %v", ErrIO, err)
	}
	if err := os.Rename(indexPath+".tmp", indexPath); err != nil {
		return fmt.Errorf("%w: rename index: %v", ErrIO, err)
	}
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		return fmt.Errorf("%w: rename metadata: %v", ErrIO, err)
	}

	s.logger.Debug("vector store saved",
		zap.String("prefix", prefix),
		zap.Int("count", len(s.metadata)),
	)
	return nil
}

// Load replaces the store contents with the artifacts at prefix. Each artifact is
// read only if present; an absent one leaves that half of the state as it is.
// If the resulting index count and metadata length differ, Load fails with
// ErrCorruptState and the store keeps its previous state.
func (s *Store) Load(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.index
	indexPath := IndexPath(prefix)
	if _, err := os.Stat(indexPath); err == nil {
		fresh, err := NewIndex(s.indexType, s.dimensions)
		if err != nil {
			return err
		}
		if err := fresh.Load(indexPath); err != nil {
			_ = fresh.Close()
			return classifyLoadError("index", err)
		}
		index = fresh
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: stat index: %v", ErrIO, err)
	}

	metadata := s.metadata
	metaPath := MetadataPath(prefix)
	data, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		var loaded []models.MetadataEntry
		if err := json.Unmarshal(data, &loaded); err != nil {
			s.discard(index)
			return fmt.Errorf("%w: decode metadata: %v", ErrCorruptState, err)
		}
		if loaded == nil {
			loaded = make([]models.MetadataEntry, 0)
		}
		metadata = loaded
	case !os.IsNotExist(err):
		s.discard(index)
		return fmt.Errorf("%w: read metadata: %v", ErrIO, err)
	}

	if index.Count() != len(metadata) {
		s.discard(index)
		return fmt.Errorf("%w: index holds %d vectors, metadata holds %d entries", ErrCorruptState, index.Count(), len(metadata))
	}

	if index != s.index {
		_ = s.index.Close()
		s.index = index
	}
	s.metadata = metadata
	s.perVideo = countByVideo(metadata)

	s.logger.Debug("vector store loaded",
		zap.String("prefix", prefix),
		zap.Int("count", len(metadata)),
	)
	return nil
}

// Close releases the backing index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func countByVideo(entries []models.MetadataEntry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.VideoID]++
	}
	return counts
}

// discard closes a freshly loaded index that will not replace the live one.
func (s *Store) discard(index Index) {
	if index != s.index {
		_ = index.Close()
	}
}

func classifyLoadError(what string, err error) error {
	if errors.Is(err, ErrCorruptState) || errors.Is(err, ErrDimensionMismatch) {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return fmt.Errorf("%w: load %s: %v", ErrIO, what, err)
}
