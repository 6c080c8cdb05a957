package models

// ScoreKind describes how a result score should be read.
type ScoreKind string

const (
	// ScoreL2Squared is the raw squared Euclidean distance. Lower is more similar.
	ScoreL2Squared ScoreKind = "l2_squared"
	// ScoreRelevance is a full-text relevance score. Higher is more relevant.
	ScoreRelevance ScoreKind = "relevance"
)

// QueryResult is one matching video moment.
type QueryResult struct {
	VideoID string  `json:"video_id"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score"`
}

// NewQueryResult copies entry and attaches score.
func NewQueryResult(entry MetadataEntry, score float64) QueryResult {
	return QueryResult{VideoID: entry.VideoID, Text: entry.Text, Start: entry.Start, End: entry.End, Score: score}
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []QueryResult `json:"results"`
	Query     string        `json:"query"`
	VideoID   string        `json:"video_id,omitempty"`
	TopK      int           `json:"top_k"`
	Mode      SearchMode    `json:"mode"`
	ScoreKind ScoreKind     `json:"score_kind"`
	QueryTime int64         `json:"query_time_ms"`
}

// ProcessResponse reports the outcome of processing one video.
type ProcessResponse struct {
	Status        string `json:"status"`
	VideoID       string `json:"video_id"`
	SegmentsCount int    `json:"segments_count"`
}
