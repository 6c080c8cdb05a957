package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// WhisperConfig configures a WhisperClient.
type WhisperConfig struct {
	BaseURL   string // e.g. https://api.openai.com/v1 or a local faster-whisper / whisper.cpp server
	Model     string
	APIKeyEnv string
	Language  string
	Timeout   time.Duration
}

// WhisperClient calls an OpenAI-compatible POST {base}/audio/transcriptions endpoint
// with response_format=verbose_json and returns its segments.
type WhisperClient struct {
	baseURL  string
	model    string
	apiKey   string
	language string
	client   *http.Client
	logger   *zap.Logger
}

// WhisperOption configures a WhisperClient.
type WhisperOption func(*WhisperClient)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) WhisperOption {
	return func(c *WhisperClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if client != nil {
			c.client = client
		}
	}
}

type verboseTranscription struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// NewWhisperClient creates a transcription client.
func NewWhisperClient(cfg WhisperConfig, opts ...WhisperOption) (*WhisperClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcription base URL is required")
	}
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
		}
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	c := &WhisperClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    model,
		apiKey:   apiKey,
		language: cfg.Language,
		client:   &http.Client{Timeout: timeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe uploads the file at path and returns the recognised segments.
func (c *WhisperClient) Transcribe(ctx context.Context, path string) ([]models.RawSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(mw, f, filepath.Base(path)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: request failed: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTranscriptionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrTranscriptionFailed, resp.StatusCode, preview(body))
	}

	var out verboseTranscription
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response (body: %s): %v", ErrTranscriptionFailed, preview(body), err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: API error: %s", ErrTranscriptionFailed, out.Error.Message)
	}

	segments := make([]models.RawSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segments = append(segments, models.RawSegment{Text: s.Text, Start: s.Start, End: s.End})
	}
	// servers that ignore verbose_json return only text
	if len(segments) == 0 && strings.TrimSpace(out.Text) != "" {
		segments = append(segments, models.RawSegment{Text: out.Text, Start: 0, End: out.Duration})
	}

	c.logger.Debug("transcribed media",
		zap.String("path", path),
		zap.String("language", out.Language),
		zap.Int("segments", len(segments)),
		zap.Duration("took", time.Since(start)),
	)
	return segments, nil
}

func (c *WhisperClient) writeForm(mw *multipart.Writer, media io.Reader, filename string) error {
	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, media); err != nil {
		return err
	}
	return mw.Close()
}

func preview(body []byte) string {
	b := bytes.TrimSpace(body)
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}
