// Package search answers natural-language queries over indexed video moments.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/embedding"
	"github.com/hyperjump/mitsukeru/internal/keyword"
	"github.com/hyperjump/mitsukeru/internal/metrics"
	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"go.uber.org/zap"
)

// ErrKeywordDisabled is returned for keyword queries when no keyword index is configured.
var ErrKeywordDisabled = errors.New("keyword search is not enabled")

// Engine runs semantic search over the vector store and keyword search over Bleve.
type Engine struct {
	embedder     embedding.Embedder
	store        *vector.Store
	keywordIndex keyword.KeywordIndex // nil disables keyword mode
	config       *config.SearchConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine with the given dependencies. keywordIndex may be nil.
func NewEngine(
	embedder embedding.Embedder,
	store *vector.Store,
	keywordIndex keyword.KeywordIndex,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{
		embedder:     embedder,
		store:        store,
		keywordIndex: keywordIndex,
		config:       cfg,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KeywordEnabled reports whether keyword mode is available.
func (e *Engine) KeywordEnabled() bool {
	return e.keywordIndex != nil
}

// Search validates the query and runs it in the requested mode. Results never
// include another video when VideoID is set; there may be fewer than TopK.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}

	var (
		results   []models.QueryResult
		scoreKind models.ScoreKind
		err       error
	)
	switch query.Mode {
	case models.SearchModeKeyword:
		results, err = e.searchKeyword(ctx, query)
		scoreKind = models.ScoreRelevance
	default:
		results, err = e.searchSemantic(ctx, query)
		scoreKind = models.ScoreL2Squared
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordQuery(string(query.Mode), len(results), startTime)
	e.logger.Debug("search completed",
		zap.String("query", query.Query),
		zap.String("mode", string(query.Mode)),
		zap.String("video_id", query.VideoID),
		zap.Int("results", len(results)))

	return &models.SearchResponse{
		Results:   results,
		Query:     query.Query,
		VideoID:   query.VideoID,
		TopK:      query.TopK,
		Mode:      query.Mode,
		ScoreKind: scoreKind,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}

// searchSemantic embeds the query as a one-element batch, takes the TopK nearest
// records and then drops other videos. The store is not asked for more than TopK.
func (e *Engine) searchSemantic(ctx context.Context, query *models.SearchQuery) ([]models.QueryResult, error) {
	vectors, err := e.embedder.EmbedBatch(ctx, []string{query.Query})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding failed: got %d vectors for 1 query", len(vectors))
	}
	results, err := e.store.Search(ctx, vectors[0], query.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return FilterByVideo(results, query.VideoID), nil
}

func (e *Engine) searchKeyword(ctx context.Context, query *models.SearchQuery) ([]models.QueryResult, error) {
	if e.keywordIndex == nil {
		return nil, ErrKeywordDisabled
	}
	hits, err := e.keywordIndex.Search(ctx, query.Query, query.TopK, &keyword.SearchOptions{VideoID: query.VideoID})
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	results := make([]models.QueryResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.QueryResult())
	}
	return results, nil
}

// FilterByVideo keeps results of videoID in their original order. Empty videoID keeps all.
func FilterByVideo(results []models.QueryResult, videoID string) []models.QueryResult {
	if videoID == "" {
		return results
	}
	filtered := make([]models.QueryResult, 0, len(results))
	for _, r := range results {
		if r.VideoID == videoID {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
