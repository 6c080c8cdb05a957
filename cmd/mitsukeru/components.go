package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/embedding"
	"github.com/hyperjump/mitsukeru/internal/indexer"
	"github.com/hyperjump/mitsukeru/internal/keyword"
	"github.com/hyperjump/mitsukeru/internal/metrics"
	"github.com/hyperjump/mitsukeru/internal/search"
	"github.com/hyperjump/mitsukeru/internal/storage"
	"github.com/hyperjump/mitsukeru/internal/transcribe"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Files        *storage.FileStore
	Embedder     embedding.Embedder
	Store        *vector.Store
	KeywordIndex keyword.KeywordIndex
	Transcriber  transcribe.Transcriber
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

// SaveStore persists the vector store to the configured prefix.
func (c *Components) SaveStore(prefix string) error {
	if prefix == "" {
		return nil
	}
	err := c.Store.Save(prefix)
	metrics.RecordPersistence("save", err)
	return err
}

func buildEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case "fastembed", "":
		return embedding.NewFastEmbedProvider(embedding.FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxTokens,
			BatchSize: cfg.BatchSize,
		})
	case "onnx":
		return embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			OutputName:    cfg.OutputName,
			Dimensions:    cfg.Dimensions,
			MaxTokens:     cfg.MaxTokens,
			CacheSize:     cfg.CacheSize,
		})
	case "openai", "ollama", "http":
		return embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKeyEnv:  cfg.APIKeyEnv,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    60 * time.Second,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", embedding.ErrUnavailable, cfg.Provider)
	}
}

// newEmbedder builds the configured provider. With lazy set the provider is
// built on first use; otherwise a provider that cannot start falls back to the
// deterministic mock so the server still comes up.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	if cfg.Lazy {
		return embedding.NewLazy(cfg.Dimensions, func() (embedding.Embedder, error) {
			return buildEmbedder(cfg)
		})
	}
	emb, err := buildEmbedder(cfg)
	if err != nil {
		logger.Warn("embedding provider unavailable, falling back to mock embeddings",
			zap.String("provider", cfg.Provider),
			zap.Error(err))
		return embedding.NewMockEmbedder(cfg.Dimensions)
	}
	return emb
}

func newTranscriber(cfg *config.Config, logger *zap.Logger) (transcribe.Transcriber, error) {
	tc := cfg.Transcription
	switch tc.Provider {
	case "sidecar":
		return transcribe.NewSidecar(cfg.Storage.TranscriptDir), nil
	case "whisper", "":
		return transcribe.NewLazy(func() (transcribe.Transcriber, error) {
			return transcribe.NewWhisperClient(transcribe.WhisperConfig{
				BaseURL:   tc.BaseURL,
				Model:     tc.Model,
				APIKeyEnv: tc.APIKeyEnv,
				Language:  tc.Language,
				Timeout:   time.Duration(tc.TimeoutSeconds) * time.Second,
			}, transcribe.WithLogger(logger))
		}), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", tc.Provider)
	}
}

// newStore creates the vector store and loads persisted artifacts. A store
// whose artifacts disagree is a start-up error.
func newStore(cfg *config.Config, dims int, logger *zap.Logger) (*vector.Store, error) {
	store, err := vector.NewStore(cfg.Vector.IndexType, dims, vector.WithLogger(logger))
	if err != nil {
		if cfg.Vector.IndexType == "memory" {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Vector.IndexType),
			zap.Error(err))
		store, err = vector.NewStore("memory", dims, vector.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}
	if prefix := cfg.Storage.VectorIndexPath; prefix != "" {
		err := store.Load(prefix)
		metrics.RecordPersistence("load", err)
		if err != nil {
			_ = store.Close()
			if errors.Is(err, vector.ErrCorruptState) {
				return nil, fmt.Errorf("vector store at %s is inconsistent, remove or restore it: %w", prefix, err)
			}
			return nil, fmt.Errorf("failed to load vector store: %w", err)
		}
	}
	metrics.SetStoreSize(store.Count())
	logger.Info("vector store initialized",
		zap.String("type", store.Type()),
		zap.Int("dimensions", store.Dimensions()),
		zap.Int("count", store.Count()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))
	return store, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = db

	c.Files, err = storage.NewFileStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	c.Embedder = newEmbedder(cfg.Embedding, logger)

	c.Store, err = newStore(cfg, c.Embedder.Dimensions(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.Search.KeywordEnabled {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.KeywordIndex = kw
	}

	c.Transcriber, err = newTranscriber(cfg, logger)
	if err != nil {
		return nil, err
	}

	kw := c.KeywordIndex
	c.Engine = search.NewEngine(c.Embedder, c.Store, kw, &cfg.Search, search.WithLogger(logger))

	idxOpts := []indexer.IndexerOption{}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	if kw != nil {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(kw))
	}
	if cfg.Vector.PersistOnIngestOrDefault() {
		idxOpts = append(idxOpts, indexer.WithPersistence(cfg.Storage.VectorIndexPath))
	}
	c.Indexer = indexer.NewIndexer(c.Storage, c.Embedder, c.Store, c.Transcriber, idxOpts...)

	ok = true
	return c, nil
}
