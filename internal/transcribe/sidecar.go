package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// Sidecar reads an existing transcript stored next to the video
// (movie.mp4 -> movie.srt, movie.vtt or movie.json) or in a transcript directory.
type Sidecar struct {
	transcriptDir string
}

// NewSidecar returns a sidecar reader. transcriptDir may be empty.
func NewSidecar(transcriptDir string) *Sidecar {
	return &Sidecar{transcriptDir: transcriptDir}
}

var sidecarExts = []string{".json", ".srt", ".vtt"}

// Transcribe returns the segments of the first sidecar found for path.
func (s *Sidecar) Transcribe(ctx context.Context, path string) ([]models.RawSegment, error) {
	for _, candidate := range s.candidates(path) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(candidate)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript %s: %w", candidate, err)
		}
		if strings.EqualFold(filepath.Ext(candidate), ".json") {
			return ParseJSONTranscript(data)
		}
		return ParseSRT(strings.NewReader(string(data)))
	}
	return nil, fmt.Errorf("%w for %s", ErrNoTranscript, filepath.Base(path))
}

func (s *Sidecar) candidates(path string) []string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	name := filepath.Base(base)
	out := make([]string, 0, 2*len(sidecarExts))
	for _, ext := range sidecarExts {
		out = append(out, base+ext)
	}
	if s.transcriptDir != "" {
		for _, ext := range sidecarExts {
			out = append(out, filepath.Join(s.transcriptDir, name+ext))
		}
	}
	return out
}

// ParseJSONTranscript accepts either a Whisper verbose_json document
// ({"segments":[{"start","end","text"}]}) or a bare array of segments.
func ParseJSONTranscript(data []byte) ([]models.RawSegment, error) {
	trimmed := strings.TrimSpace(string(data))
	var raw []whisperSegment
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse transcript: %w", err)
		}
	} else {
		var doc verboseTranscription
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse transcript: %w", err)
		}
		raw = doc.Segments
	}
	segments := make([]models.RawSegment, len(raw))
	for i, s := range raw {
		segments[i] = models.RawSegment{Text: s.Text, Start: s.Start, End: s.End}
	}
	return segments, nil
}
