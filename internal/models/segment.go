package models

// RawSegment is a time-stamped span of transcribed speech as produced by a transcriber.
// Text may be blank or padded with whitespace.
type RawSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptSegment is a searchable unit derived from a RawSegment.
// Text is trimmed and never empty; Start <= End.
type TranscriptSegment struct {
	VideoID string  `json:"video_id"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// MetadataEntry is the provenance record stored alongside each indexed vector.
// Its JSON form is the element type of the persisted metadata log.
type MetadataEntry struct {
	VideoID string  `json:"video_id"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Entry returns the metadata record for the segment.
func (s TranscriptSegment) Entry() MetadataEntry {
	return MetadataEntry{VideoID: s.VideoID, Text: s.Text, Start: s.Start, End: s.End}
}
