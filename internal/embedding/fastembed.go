//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures a FastEmbedProvider.
type FastEmbedConfig struct {
	// Model is the embedding model name, e.g. sentence-transformers/all-MiniLM-L6-v2.
	Model string
	// CacheDir is where model files are downloaded.
	CacheDir string
	// MaxLength is the maximum input sequence length.
	MaxLength int
	// BatchSize is the inference batch size.
	BatchSize int
}

// FastEmbedProvider embeds text with a locally cached ONNX model managed by fastembed.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	dimension int
	batchSize int
	mu        sync.RWMutex
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
}

// NewFastEmbedProvider loads (downloading on first use) the configured model.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrUnavailable, cfg.Model)
	}
	dimension, _ := ModelDimensions(cfg.Model)

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 256
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing fastembed: %v", ErrUnavailable, err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

// Embed returns the embedding of a single text.
func (p *FastEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts without any query/passage prefix; the model is symmetric.
func (p *FastEmbedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vecs, err := p.model.Embed(texts, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(vecs), len(texts))
	}
	for _, v := range vecs {
		NormalizeL2Slice(v)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimensions() int {
	return p.dimension
}

// Close releases the ONNX session held by fastembed.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		err := p.model.Destroy()
		p.model = nil
		return err
	}
	return nil
}
