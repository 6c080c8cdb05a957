package search

import (
	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/models"
)

// ProcessQuery applies configured top_k defaults and caps, then validates the query.
// A configured max_top_k replaces the built-in cap.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	limit := models.MaxTopK
	if cfg != nil {
		if query.TopK <= 0 && cfg.DefaultTopK > 0 {
			query.TopK = cfg.DefaultTopK
		}
		if cfg.MaxTopK > 0 {
			limit = cfg.MaxTopK
		}
	}
	return query.ValidateWithLimit(limit)
}
