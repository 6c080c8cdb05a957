//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// OutputLastHiddenState is the token-level output of a plain transformer export.
// When it is the configured output, embeddings are mean-pooled over the attention mask.
const OutputLastHiddenState = "last_hidden_state"

// ONNXConfig configures an ONNXEmbedder.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string // tokenizer.json; empty uses SimpleTokenizer
	OutputName    string // "sentence_embedding", "last_hidden_state", ...
	Dimensions    int
	MaxTokens     int
	CacheSize     int
}

// ONNXEmbedder uses ONNX Runtime to produce embeddings. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	pooled     bool
	cache      *EmbeddingCache
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "sentence_embedding"
	}

	var tokenizer Tokenizer = &SimpleTokenizer{}
	if cfg.TokenizerPath != "" {
		wp, err := NewWordPieceTokenizer(cfg.TokenizerPath)
		if err != nil {
			return nil, err
		}
		tokenizer = wp
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX runtime: %v", ErrUnavailable, err)
	}

	maxTokens := int64(cfg.MaxTokens)
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", cfg.MaxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, maxTokens), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, maxTokens), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, maxTokens), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}

	pooled := cfg.OutputName == OutputLastHiddenState
	outputShape := ort.NewShape(1, int64(cfg.Dimensions))
	if pooled {
		outputShape = ort.NewShape(1, maxTokens, int64(cfg.Dimensions))
	}
	outputTensor, err := ort.NewTensor(outputShape, make([]float32, outputShape.FlattenedSize()))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	inputs := []ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.ArbitraryTensor{outputTensor}
	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		inputs,
		outputs,
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:             session,
		dimensions:          cfg.Dimensions,
		maxTokens:           cfg.MaxTokens,
		pooled:              pooled,
		cache:               NewEmbeddingCache(cfg.CacheSize),
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)

	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference: %v", ErrEmbeddingFailed, err)
	}

	outputData := e.outputTensor.GetData()
	var embedding []float32
	if e.pooled {
		embedding = meanPool(outputData, attentionMask, e.dimensions)
	} else {
		embedding = make([]float32, e.dimensions)
		copy(embedding, outputData[:e.dimensions])
	}

	NormalizeL2Slice(embedding)
	e.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.tokenTypeIDsTensor != nil {
		_ = e.tokenTypeIDsTensor.Destroy()
		e.tokenTypeIDsTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
