// Package keyword provides full-text search over transcript segments.
package keyword

import (
	"context"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// VideoID restricts hits to segments of one video. Empty means all videos.
	VideoID string
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over transcript segments.
type KeywordIndex interface {
	IndexSegments(ctx context.Context, segments []models.TranscriptSegment) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DeleteVideo(ctx context.Context, videoID string) error
	Close() error
	// DocCount returns the total number of segments in the index.
	DocCount() (uint64, error)
}

// KeywordResult is a single keyword search hit. Score is a relevance score, higher is better.
type KeywordResult struct {
	ID      string
	VideoID string
	Text    string
	Start   float64
	End     float64
	Score   float64
}

// QueryResult converts the hit to the API result shape.
func (r *KeywordResult) QueryResult() models.QueryResult {
	return models.QueryResult{
		VideoID: r.VideoID,
		Text:    r.Text,
		Start:   r.Start,
		End:     r.End,
		Score:   r.Score,
	}
}
