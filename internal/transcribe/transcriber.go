// Package transcribe turns a video file into time-stamped transcript segments.
package transcribe

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// Transcriber produces raw, time-stamped segments for the media file at path.
// Segments are returned in playback order; text may be blank.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]models.RawSegment, error)
}

var (
	// ErrNoTranscript is returned when no transcript source exists for a file.
	ErrNoTranscript = errors.New("no transcript available")
	// ErrTranscriptionFailed wraps provider failures.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Lazy builds its Transcriber on first use. Construction runs at most once.
type Lazy struct {
	init func() (Transcriber, error)

	once sync.Once
	t    Transcriber
	err  error
}

// NewLazy returns a Lazy that builds its provider with init.
func NewLazy(init func() (Transcriber, error)) *Lazy {
	return &Lazy{init: init}
}

// Transcribe initializes the provider if needed and transcribes path.
func (l *Lazy) Transcribe(ctx context.Context, path string) ([]models.RawSegment, error) {
	l.once.Do(func() {
		l.t, l.err = l.init()
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.t.Transcribe(ctx, path)
}
