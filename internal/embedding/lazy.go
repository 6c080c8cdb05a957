package embedding

import (
	"context"
	"sync"
)

// Lazy defers construction of an Embedder until the first embedding call.
// Construction runs at most once; its error is returned by every later call.
type Lazy struct {
	dimensions int
	init       func() (Embedder, error)

	once     sync.Once
	embedder Embedder
	err      error
}

// NewLazy returns a Lazy that builds its provider with init.
// dimensions is reported before the provider exists.
func NewLazy(dimensions int, init func() (Embedder, error)) *Lazy {
	return &Lazy{dimensions: dimensions, init: init}
}

func (l *Lazy) get() (Embedder, error) {
	l.once.Do(func() {
		l.embedder, l.err = l.init()
	})
	return l.embedder, l.err
}

// Embed initializes the provider if needed and embeds text.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// EmbedBatch initializes the provider if needed and embeds texts.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}

// Dimensions returns the configured dimension.
func (l *Lazy) Dimensions() int {
	return l.dimensions
}

// Close closes the provider if it was built.
func (l *Lazy) Close() error {
	// marks the once as done so an unused provider is never built
	l.once.Do(func() {})
	if l.embedder == nil {
		return nil
	}
	return l.embedder.Close()
}
