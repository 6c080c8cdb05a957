package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/embedding"
	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/transcribe"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"light reactions", "-top-k", "3"},
			expected: []string{"-top-k", "3", "light reactions"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "3", "light reactions"},
			expected: []string{"-top-k", "3", "light reactions"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"light reactions"},
			expected: []string{"light reactions"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-mode", "keyword"},
			expected: []string{"-mode", "keyword", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"photosynthesis"}, "photosynthesis"},
		{"multiple words", []string{"light", "reactions"}, "light reactions"},
		{"single quoted phrase", []string{"light reactions"}, "light reactions"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSearchURL(t *testing.T) {
	q := &models.SearchQuery{Query: "plants & light", VideoID: "v1", TopK: 3, Mode: models.SearchModeKeyword}
	raw := searchURL("http://localhost:8000/", q)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/v1/search" {
		t.Errorf("path = %q", u.Path)
	}
	v := u.Query()
	if v.Get("query") != "plants & light" || v.Get("video_id") != "v1" || v.Get("top_k") != "3" || v.Get("mode") != "keyword" {
		t.Errorf("query params = %v", v)
	}

	minimal, _ := url.Parse(searchURL("http://h", &models.SearchQuery{Query: "x"}))
	if minimal.Query().Has("top_k") || minimal.Query().Has("video_id") {
		t.Errorf("unset fields should be omitted: %s", minimal.RawQuery)
	}
}

func TestSplitPatterns(t *testing.T) {
	got := splitPatterns(" **/*.mp4, ,**/*.mkv ")
	want := []string{"**/*.mp4", "**/*.mkv"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitPatterns() = %v, want %v", got, want)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestBuildEmbedder(t *testing.T) {
	emb, err := buildEmbedder(config.EmbeddingConfig{Provider: "mock", Dimensions: 16})
	if err != nil {
		t.Fatal(err)
	}
	if emb.Dimensions() != 16 {
		t.Errorf("dimensions = %d, want 16", emb.Dimensions())
	}
	if _, err := buildEmbedder(config.EmbeddingConfig{Provider: "word2vec"}); !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("unknown provider: got %v, want ErrUnavailable", err)
	}
	// An unavailable provider falls back to mock embeddings of the configured size.
	fallback := newEmbedder(config.EmbeddingConfig{Provider: "word2vec", Dimensions: 12}, zap.NewNop())
	if fallback.Dimensions() != 12 {
		t.Errorf("fallback dimensions = %d, want 12", fallback.Dimensions())
	}
	lazy := newEmbedder(config.EmbeddingConfig{Provider: "word2vec", Dimensions: 12, Lazy: true}, zap.NewNop())
	if _, err := lazy.Embed(context.Background(), "x"); !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("lazy unknown provider: got %v, want ErrUnavailable", err)
	}
}

func TestNewTranscriber(t *testing.T) {
	cfg := &config.Config{Transcription: config.TranscriptionConfig{Provider: "sidecar"}}
	tr, err := newTranscriber(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*transcribe.Sidecar); !ok {
		t.Errorf("sidecar provider built %T", tr)
	}
	cfg.Transcription.Provider = "whisper"
	tr, err = newTranscriber(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*transcribe.Lazy); !ok {
		t.Errorf("whisper provider built %T, want lazy", tr)
	}
	cfg.Transcription.Provider = "carrier-pigeon"
	if _, err := newTranscriber(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func writeTestConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	content := fmt.Sprintf(`
storage:
  database_path: %[1]s/db/videos.db
  upload_dir: %[1]s/uploads
  transcript_dir: %[1]s/transcripts
  vector_index_path: %[1]s/vector_db/index
  bleve_index_path: %[1]s/bleve
embedding:
  provider: mock
  dimensions: 8
transcription:
  provider: sidecar
search:
  keyword_enabled: true
`, dir)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

const testSRT = `1
00:00:00,000 --> 00:00:01,000
hello there

2
00:00:01,000 --> 00:00:02,500
general kenobi
`

func TestInitializeComponents_ingestAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	videos := filepath.Join(dir, "videos")
	if err := os.MkdirAll(videos, 0755); err != nil {
		t.Fatal(err)
	}
	videoPath := filepath.Join(videos, "clip.mp4")
	if err := os.WriteFile(videoPath, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(videos, "clip.srt"), []byte(testSRT), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := initializeComponents(cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	resp, err := c.Indexer.IngestFile(context.Background(), videoPath)
	if err != nil {
		c.Close()
		t.Fatalf("IngestFile: %v", err)
	}
	if resp.SegmentsCount != 2 {
		t.Errorf("segments = %d, want 2", resp.SegmentsCount)
	}
	status, err := collectStatus(context.Background(), cfg, c)
	if err != nil {
		c.Close()
		t.Fatal(err)
	}
	if status.Videos != 1 || status.VectorStoreSize != 2 || status.KeywordDocs != 2 || status.Dimensions != 8 {
		t.Errorf("status = %+v", status)
	}
	if status.DiskUsageBytes <= 0 {
		t.Errorf("disk usage = %d, want > 0", status.DiskUsageBytes)
	}
	c.Close()

	// Persisted on ingest, so a fresh start sees the same store.
	c2, err := initializeComponents(cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	defer c2.Close()
	if c2.Store.Count() != 2 {
		t.Errorf("reloaded store count = %d, want 2", c2.Store.Count())
	}
	res, err := c2.Engine.Search(context.Background(), &models.SearchQuery{Query: "general kenobi", TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].Text != "general kenobi" || res.Results[0].Start != 1 {
		t.Errorf("search after reload = %+v", res.Results)
	}
}

func TestInitializeComponents_corruptStoreFailsFast(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	prefix := cfg.Storage.VectorIndexPath
	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		t.Fatal(err)
	}
	meta := `[{"video_id":"v","text":"orphan","start":0,"end":1}]`
	if err := os.WriteFile(vector.MetadataPath(prefix), []byte(meta), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := initializeComponents(cfg, zap.NewNop(), false)
	if !errors.Is(err, vector.ErrCorruptState) {
		t.Fatalf("got %v, want ErrCorruptState", err)
	}
}
