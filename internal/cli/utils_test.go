package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/mitsukeru/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "photosynthesis",
		TopK:      5,
		Mode:      models.SearchModeSemantic,
		ScoreKind: models.ScoreL2Squared,
		QueryTime: 12,
		Results: []models.QueryResult{
			{VideoID: "v1", Text: "plants turn light into sugar", Start: 61.5, End: 64, Score: 0.12},
			{VideoID: "v2", Text: "chlorophyll absorbs red and blue", Start: 3, End: 5.25, Score: 0.4},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.QueryTime != response.QueryTime {
		t.Errorf("decoded query=%q query_time=%d", decoded.Query, decoded.QueryTime)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].VideoID != "v1" {
		t.Errorf("decoded results = %+v", decoded.Results)
	}
	if decoded.ScoreKind != models.ScoreL2Squared {
		t.Errorf("score_kind = %q", decoded.ScoreKind)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 2 results", "12ms", "mode: semantic", "score: l2_squared",
		"Rank: 1", "Video: v1 @ 00:01:01.500 - 00:01:04.000", "plants turn light into sugar",
		"Rank: 2", "chlorophyll",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatalf("WriteSearchResults(compact): %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	fields := strings.Split(lines[1], "\t")
	if len(fields) != 4 || fields[0] != "v2" || fields[1] != "00:00:03.000-00:00:05.250" {
		t.Errorf("compact line = %q", lines[1])
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	response := &models.SearchResponse{Query: "x"}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, SearchOutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteSearchResults_truncatesLongText(t *testing.T) {
	long := strings.Repeat("word ", 100)
	response := &models.SearchResponse{Results: []models.QueryResult{{VideoID: "v", Text: long}}}
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, response, OutputText)
	if strings.Contains(buf.String(), long) {
		t.Error("expected long text to be truncated")
	}
	if !strings.Contains(buf.String(), "...") {
		t.Error("expected ellipsis on truncated text")
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchOutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" compact ", OutputCompact, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	s := &Status{Videos: 3, TranscriptSegments: 40, VectorStoreSize: 38, VectorIndexType: "memory", Dimensions: 384, DiskUsageBytes: 2048}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"Videos:              3", "38 entries (memory, 384 dims)", "2.0 KiB"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("status output missing %q:\n%s", sub, buf.String())
		}
	}

	buf.Reset()
	if err := WriteStatus(&buf, s, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["vector_store_size"] != float64(38) {
		t.Errorf("vector_store_size = %v", decoded["vector_store_size"])
	}
}
