package models

import (
	"errors"
	"fmt"
	"strings"
)

// SearchMode selects the retrieval path.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeKeyword  SearchMode = "keyword"
)

// ErrInvalidQuery is returned by Validate for unusable queries.
var ErrInvalidQuery = errors.New("invalid query")

const (
	// DefaultTopK is used when a query does not set TopK.
	DefaultTopK = 5
	// MaxTopK caps TopK.
	MaxTopK = 100
)

// SearchQuery represents a search request with an optional video filter.
type SearchQuery struct {
	Query   string     `json:"query"`
	VideoID string     `json:"video_id,omitempty"`
	TopK    int        `json:"top_k,omitempty"`
	Mode    SearchMode `json:"mode,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty or the mode is unknown; otherwise normalizes TopK and Mode.
func (q *SearchQuery) Validate() error {
	return q.ValidateWithLimit(MaxTopK)
}

// ValidateWithLimit is Validate with TopK capped at maxTopK instead of MaxTopK.
// A non-positive maxTopK leaves TopK uncapped.
func (q *SearchQuery) ValidateWithLimit(maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	switch q.Mode {
	case "":
		q.Mode = SearchModeSemantic
	case SearchModeSemantic, SearchModeKeyword:
	default:
		return fmt.Errorf("%w: unknown search mode %q (supported: semantic, keyword)", ErrInvalidQuery, q.Mode)
	}
	return nil
}
