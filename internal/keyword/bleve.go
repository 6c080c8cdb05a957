package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/mitsukeru/internal/models"
)

// segmentDoc is the stored form of a transcript segment.
type segmentDoc struct {
	VideoID string  `json:"video_id"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming, so spoken
	// words match exactly what was said.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("video_id", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("start", bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt("end", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("segment", docMapping)
	im.DefaultType = "segment"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// SegmentID returns the document id of the n-th segment of a video.
func SegmentID(videoID string, n int) string {
	return fmt.Sprintf("%s:%d", videoID, n)
}

// IndexSegments indexes segments in one batch. Document ids follow the
// segment's position within its video.
func (b *BleveIndex) IndexSegments(ctx context.Context, segments []models.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	positions := make(map[string]int)
	for _, seg := range segments {
		n := positions[seg.VideoID]
		positions[seg.VideoID] = n + 1
		doc := segmentDoc{VideoID: seg.VideoID, Text: seg.Text, Start: seg.Start, End: seg.End}
		if err := batch.Index(SegmentID(seg.VideoID, n), doc); err != nil {
			return fmt.Errorf("failed to batch segment: %w", err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index segments: %w", err)
	}
	return nil
}

// Search runs a match query over segment text and returns up to limit hits,
// highest score first. When opts.VideoID is set only that video's segments match.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return []*KeywordResult{}, nil
	}
	fuzzyEnabled := false
	fuzziness := 2
	videoID := ""
	if opts != nil {
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		videoID = opts.VideoID
	}

	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		q = mq
	}
	if videoID != "" {
		tq := bleve.NewTermQuery(videoID)
		tq.SetField("video_id")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"video_id", "text", "start", "end"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		r := &KeywordResult{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["video_id"].(string); ok {
			r.VideoID = v
		}
		if v, ok := hit.Fields["text"].(string); ok {
			r.Text = v
		}
		if v, ok := hit.Fields["start"].(float64); ok {
			r.Start = v
		}
		if v, ok := hit.Fields["end"].(float64); ok {
			r.End = v
		}
		out = append(out, r)
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries on the text field, one per term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField("text")
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("text")
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DeleteVideo removes every segment of a video from the index.
func (b *BleveIndex) DeleteVideo(ctx context.Context, videoID string) error {
	tq := bleve.NewTermQuery(videoID)
	tq.SetField("video_id")
	for {
		req := bleve.NewSearchRequest(tq)
		req.Size = 1000
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find segments of %s: %w", videoID, err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete segments of %s: %w", videoID, err)
		}
	}
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of segments in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
