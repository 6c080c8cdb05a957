//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// OutputLastHiddenState is the token-level output of a plain transformer export.
const OutputLastHiddenState = "last_hidden_state"

// ONNXConfig configures an ONNXEmbedder.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	OutputName    string
	Dimensions    int
	MaxTokens     int
	CacheSize     int
}

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ ONNXConfig) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", ErrUnavailable)
}

// Embed is not implemented without CGO.
func (e *ONNXEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrUnavailable
}

// EmbedBatch is not implemented without CGO.
func (e *ONNXEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrUnavailable
}

// Dimensions returns 0 without CGO.
func (e *ONNXEmbedder) Dimensions() int { return 0 }

// Close is a no-op without CGO.
func (e *ONNXEmbedder) Close() error { return nil }
