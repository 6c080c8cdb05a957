package indexer

import (
	"strings"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// Segment turns raw transcript segments into retrievable units for videoID.
// Text is trimmed; segments that are empty after trimming are dropped. Order is
// preserved and no segment is merged or split. An end before start is clamped to start.
func Segment(videoID string, raw []models.RawSegment) []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		end := r.End
		if end < r.Start {
			end = r.Start
		}
		out = append(out, models.TranscriptSegment{
			VideoID: videoID,
			Text:    text,
			Start:   r.Start,
			End:     end,
		})
	}
	return out
}
