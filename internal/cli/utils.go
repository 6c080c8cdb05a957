// Package cli provides CLI output helpers for Mitsukeru.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/search"
	"github.com/hyperjump/mitsukeru/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat maps a flag value to a format. Unknown values yield an error.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%s\t%s-%s\t%.4f\t%s\n", r.VideoID,
				utils.FormatTimestamp(r.Start), utils.FormatTimestamp(r.End), r.Score, search.Highlight(r.Text, 80))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (mode: %s, score: %s)\n\n",
		len(response.Results), response.QueryTime, modeOrDefault(response.Mode), response.ScoreKind)
	for i, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, r.Score)
		fmt.Fprintf(w, "Video: %s @ %s - %s\n", r.VideoID, utils.FormatTimestamp(r.Start), utils.FormatTimestamp(r.End))
		fmt.Fprintf(w, "\n%s\n\n", search.Highlight(r.Text, 200))
	}
}

func modeOrDefault(m models.SearchMode) models.SearchMode {
	if m == "" {
		return models.SearchModeSemantic
	}
	return m
}

// Status is the summary printed by the status command.
type Status struct {
	Videos             int64  `json:"videos"`
	TranscriptSegments int64  `json:"transcript_segments"`
	VectorStoreSize    int    `json:"vector_store_size"`
	VectorIndexType    string `json:"vector_index_type"`
	Dimensions         int    `json:"embedding_dimensions"`
	KeywordDocs        uint64 `json:"keyword_documents"`
	DiskUsageBytes     int64  `json:"disk_usage_bytes"`
}

// WriteStatus writes s as text or JSON.
func WriteStatus(w io.Writer, s *Status, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Videos:              %d\n", s.Videos)
	fmt.Fprintf(w, "Transcript segments: %d\n", s.TranscriptSegments)
	fmt.Fprintf(w, "Vector store:        %d entries (%s, %d dims)\n", s.VectorStoreSize, s.VectorIndexType, s.Dimensions)
	fmt.Fprintf(w, "Keyword documents:   %d\n", s.KeywordDocs)
	fmt.Fprintf(w, "Disk usage:          %s\n", utils.FormatBytes(s.DiskUsageBytes))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
