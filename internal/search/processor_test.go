package search

import (
	"testing"

	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/models"
)

func TestProcessQuery_TopK(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.SearchConfig
		topK     int
		wantTopK int
	}{
		{"configured cap above built-in", &config.SearchConfig{DefaultTopK: 5, MaxTopK: 500}, 300, 300},
		{"configured cap applies", &config.SearchConfig{DefaultTopK: 5, MaxTopK: 500}, 900, 500},
		{"configured default", &config.SearchConfig{DefaultTopK: 7, MaxTopK: 500}, 0, 7},
		{"no cap configured", &config.SearchConfig{DefaultTopK: 5}, 300, models.MaxTopK},
		{"nil config", nil, 300, models.MaxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &models.SearchQuery{Query: "x", TopK: tt.topK}
			if err := ProcessQuery(q, tt.cfg); err != nil {
				t.Fatal(err)
			}
			if q.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", q.TopK, tt.wantTopK)
			}
		})
	}
}
