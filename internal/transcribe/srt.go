package transcribe

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// ParseSRT parses SubRip (and WebVTT) cues into raw segments. Multi-line cue
// text is joined with a single space.
//
//	1
//	00:00:00,000 --> 00:00:01,830
//	I'm happy to
//	have you here today.
func ParseSRT(r io.Reader) ([]models.RawSegment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	segments := make([]models.RawSegment, 0)
	var cur *models.RawSegment
	var text []string
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, " ")
			segments = append(segments, *cur)
		}
		cur, text = nil, nil
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		switch {
		case line == "":
			flush()
		case lineNo == 1 && strings.HasPrefix(line, "WEBVTT"):
		case strings.Contains(line, "-->"):
			flush()
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur = &models.RawSegment{Start: start, End: end}
		case cur == nil:
			// sequence number or cue identifier
		default:
			text = append(text, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitles: %w", err)
	}
	flush()
	return segments, nil
}

func parseCueTiming(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	// WebVTT may carry cue settings after the end time
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp reads HH:MM:SS,mmm, HH:MM:SS.mmm or MM:SS.mmm into seconds.
func parseTimestamp(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var total float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i < len(fields)-1 && strings.Contains(f, ".") {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}
