package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// HTTPConfig configures an OpenAI-compatible embeddings client.
type HTTPConfig struct {
	BaseURL    string // e.g. https://api.openai.com/v1 or http://localhost:11434/v1
	Model      string
	APIKeyEnv  string // environment variable holding the API key; empty for keyless servers
	Dimensions int    // 0 resolves from the model name
	BatchSize  int
	Timeout    time.Duration
}

// HTTPEmbedder calls a POST {base}/embeddings endpoint (OpenAI, Ollama, vLLM, TEI).
type HTTPEmbedder struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	batchSize  int
	client     *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewHTTPEmbedder creates an OpenAI-compatible embedder.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: embeddings base URL is required", ErrUnavailable)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings model is required", ErrUnavailable)
	}
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key not found in environment variable: %s", ErrUnavailable, cfg.APIKeyEnv)
		}
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		d, ok := ModelDimensions(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("%w: unknown dimensions for model %q", ErrUnavailable, cfg.Model)
		}
		dims = d
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPEmbedder{
		apiKey:     apiKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dimensions: dims,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Embed returns the embedding of a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in chunks of the configured batch size and returns
// unit-length vectors in input order.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrEmbeddingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrEmbeddingFailed, resp.StatusCode, preview(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response (body: %s): %v", ErrEmbeddingFailed, preview(body), err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("%w: API error: %s", ErrEmbeddingFailed, embResp.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrEmbeddingFailed, i)
		}
		if len(emb) != e.dimensions {
			return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d", ErrEmbeddingFailed, len(emb), e.dimensions)
		}
		NormalizeL2Slice(emb)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
