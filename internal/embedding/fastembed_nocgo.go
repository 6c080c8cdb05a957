//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// FastEmbedConfig configures a FastEmbedProvider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, fmt.Errorf("%w: fastembed requires CGO", ErrUnavailable)
}

// Embed returns an error when CGO is not available.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrUnavailable
}

// EmbedBatch returns an error when CGO is not available.
func (p *FastEmbedProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrUnavailable
}

// Dimensions returns 0 when CGO is not available.
func (p *FastEmbedProvider) Dimensions() int {
	return 0
}

// Close is a no-op when CGO is not available.
func (p *FastEmbedProvider) Close() error {
	return nil
}
