package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/mitsukeru/internal/models"
)

func entries(videoID string, n int) []models.MetadataEntry {
	out := make([]models.MetadataEntry, n)
	for i := range out {
		out[i] = models.MetadataEntry{
			VideoID: videoID,
			Text:    fmt.Sprintf("segment %d", i),
			Start:   float64(i),
			End:     float64(i) + 1,
		}
	}
	return out
}

func newTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := NewStore("memory", dim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AddKeepsMetadataAligned(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	if err := s.Add(ctx, [][]float32{{1, 0}, {0, 1}}, entries("v1", 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, [][]float32{{1, 1}}, entries("v2", 1)); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 3 || s.index.Count() != 3 {
		t.Errorf("Count=%d index=%d, want 3", s.Count(), s.index.Count())
	}
	if err := s.Add(ctx, nil, nil); err != nil {
		t.Errorf("empty add: %v", err)
	}
}

func TestStore_AddRejectsWithoutMutation(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()
	_ = s.Add(ctx, [][]float32{{1, 0, 0}}, entries("v1", 1))

	tests := []struct {
		name    string
		vectors [][]float32
		entries []models.MetadataEntry
		want    error
	}{
		{"short vector in batch", [][]float32{{1, 0, 0}, {1, 0}}, entries("v2", 2), ErrDimensionMismatch},
		{"long vector", [][]float32{{1, 0, 0, 0}}, entries("v2", 1), ErrDimensionMismatch},
		{"length mismatch", [][]float32{{1, 0, 0}}, entries("v2", 2), ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(ctx, tt.vectors, tt.entries)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if s.Count() != 1 || s.index.Count() != 1 {
				t.Errorf("store mutated: Count=%d index=%d", s.Count(), s.index.Count())
			}
		})
	}
}

func TestStore_SearchOrderingAndCopies(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()
	_ = s.Add(ctx, [][]float32{{0, 0}, {3, 4}, {1, 0}}, entries("v1", 3))

	results, err := s.Search(ctx, []float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantText := []string{"segment 0", "segment 2", "segment 1"}
	wantScore := []float64{0, 1, 25}
	for i, r := range results {
		if r.Text != wantText[i] || r.Score != wantScore[i] {
			t.Errorf("result %d = %+v, want %s/%v", i, r, wantText[i], wantScore[i])
		}
		if i > 0 && results[i-1].Score > r.Score {
			t.Errorf("scores not ascending at %d", i)
		}
	}

	results[0].Text = "changed"
	again, _ := s.Search(ctx, []float32{0, 0}, 1)
	if again[0].Text != "segment 0" {
		t.Error("mutating a result changed stored metadata")
	}
}

func TestStore_SearchEdgeCases(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("empty store search: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil results, got %v", results)
	}

	_ = s.Add(ctx, [][]float32{{1, 0}, {0, 1}}, entries("v1", 2))
	results, _ = s.Search(ctx, []float32{1, 0}, 10)
	if len(results) != 2 {
		t.Errorf("n < k: expected 2 results, got %d", len(results))
	}

	if _, err := s.Search(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.Search(ctx, []float32{1, 0}, 0); !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("expected ErrInvalidTopK, got %v", err)
	}
}

func TestStore_SearchDropsUnmappedLabels(t *testing.T) {
	s := newTestStore(t, 1)
	s.index = &paddedIndex{Index: s.index}
	ctx := context.Background()
	_ = s.Add(ctx, [][]float32{{1}}, entries("v1", 1))

	results, err := s.Search(ctx, []float32{1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "segment 0" {
		t.Errorf("expected only the mapped result, got %+v", results)
	}
}

// paddedIndex mimics an index that pads missing slots with -1 and returns stale labels.
type paddedIndex struct {
	Index
}

func (p *paddedIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	hits, err := p.Index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits = append(hits, Hit{Label: 7, Distance: 0.5})
	for len(hits) < k {
		hits = append(hits, Hit{Label: -1, Distance: 0})
	}
	return hits, nil
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "vector_db", "store")
	ctx := context.Background()

	s := newTestStore(t, 2)
	_ = s.Add(ctx, [][]float32{{0, 0}, {3, 4}, {1, 0}}, entries("v1", 3))
	before, _ := s.Search(ctx, []float32{0.5, 0.5}, 3)
	if err := s.Save(prefix); err != nil {
		t.Fatal(err)
	}

	loaded := newTestStore(t, 2)
	if err := loaded.Load(prefix); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != 3 {
		t.Fatalf("Count=%d after load", loaded.Count())
	}
	after, _ := loaded.Search(ctx, []float32{0.5, 0.5}, 3)
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, before[i], after[i])
		}
	}

	// Load is idempotent
	if err := loaded.Load(prefix); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != 3 {
		t.Errorf("Count=%d after second load", loaded.Count())
	}

	data, err := os.ReadFile(MetadataPath(prefix))
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"video_id", "text", "start", "end"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("metadata entry missing key %q", key)
		}
	}
}

func TestStore_VideoCount(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	s := newTestStore(t, 2)
	_ = s.Add(ctx, [][]float32{{0, 0}, {1, 1}}, entries("v1", 2))
	_ = s.Add(ctx, [][]float32{{2, 2}}, entries("v2", 1))
	if s.VideoCount("v1") != 2 || s.VideoCount("v2") != 1 || s.VideoCount("v3") != 0 {
		t.Errorf("VideoCount: v1=%d v2=%d v3=%d", s.VideoCount("v1"), s.VideoCount("v2"), s.VideoCount("v3"))
	}
	if err := s.Save(prefix); err != nil {
		t.Fatal(err)
	}

	loaded := newTestStore(t, 2)
	_ = loaded.Add(ctx, [][]float32{{5, 5}}, entries("stale", 1))
	if err := loaded.Load(prefix); err != nil {
		t.Fatal(err)
	}
	if loaded.VideoCount("v1") != 2 || loaded.VideoCount("stale") != 0 {
		t.Errorf("after load: v1=%d stale=%d", loaded.VideoCount("v1"), loaded.VideoCount("stale"))
	}
}

func TestStore_LoadCorruptIndexHeader(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	s := newTestStore(t, 384)
	vec := make([]float32, 384)
	_ = s.Add(ctx, [][]float32{vec}, entries("v1", 1))
	if err := s.Save(prefix); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(IndexPath(prefix))
	if err != nil {
		t.Fatal(err)
	}
	copy(data[4:8], []byte{0xff, 0xff, 0xff, 0xff})
	if err := os.WriteFile(IndexPath(prefix), data, 0644); err != nil {
		t.Fatal(err)
	}

	fresh := newTestStore(t, 384)
	if err := fresh.Load(prefix); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	if fresh.Count() != 0 {
		t.Errorf("Count=%d after failed load", fresh.Count())
	}
}

func TestStore_LoadMissingArtifacts(t *testing.T) {
	s := newTestStore(t, 2)
	if err := s.Load(filepath.Join(t.TempDir(), "nothing")); err != nil {
		t.Errorf("missing artifacts should not error: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count=%d", s.Count())
	}
}

func TestStore_LoadCorruptPair(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "store")
	ctx := context.Background()

	s := newTestStore(t, 2)
	_ = s.Add(ctx, [][]float32{{1, 0}, {0, 1}}, entries("v1", 2))
	if err := s.Save(prefix); err != nil {
		t.Fatal(err)
	}
	// metadata with one entry too few
	short, _ := json.Marshal(entries("v1", 1))
	if err := os.WriteFile(MetadataPath(prefix), short, 0644); err != nil {
		t.Fatal(err)
	}

	target := newTestStore(t, 2)
	_ = target.Add(ctx, [][]float32{{5, 5}}, entries("keep", 1))
	err := target.Load(prefix)
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	if target.Count() != 1 {
		t.Errorf("failed load changed state: Count=%d", target.Count())
	}
	results, _ := target.Search(ctx, []float32{5, 5}, 1)
	if len(results) != 1 || results[0].VideoID != "keep" {
		t.Errorf("previous state not preserved: %+v", results)
	}

	if err := os.WriteFile(MetadataPath(prefix), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := target.Load(prefix); !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState for bad json, got %v", err)
	}
}

func TestStore_LoadOnlyMetadataMismatch(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "store")
	data, _ := json.Marshal(entries("v1", 2))
	if err := os.WriteFile(MetadataPath(prefix), data, 0644); err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t, 2)
	if err := s.Load(prefix); !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestStore_SaveFailureIsIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t, 2)
	_ = s.Add(context.Background(), [][]float32{{1, 0}}, entries("v1", 1))
	err := s.Save(filepath.Join(blocker, "store"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count=%d after failed save", s.Count())
	}
}

func TestStore_ConcurrentAddSearch(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Add(ctx, [][]float32{{float32(i), 0}, {0, float32(i)}}, entries(fmt.Sprintf("v%d", i), 2))
		}(i)
		go func() {
			defer wg.Done()
			results, err := s.Search(ctx, []float32{1, 1}, 4)
			if err != nil {
				t.Error(err)
			}
			if len(results) > 4 {
				t.Errorf("got %d results", len(results))
			}
		}()
	}
	wg.Wait()
	if s.Count() != 16 || s.index.Count() != 16 {
		t.Errorf("Count=%d index=%d, want 16", s.Count(), s.index.Count())
	}
}
