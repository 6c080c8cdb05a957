// Package config provides configuration loading and structs for the mitsukeru server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Vector        VectorConfig        `yaml:"vector"`
	Search        SearchConfig        `yaml:"search"`
	Watch         WatchConfig         `yaml:"watch"`
	Ingest        IngestConfig        `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
}

// StorageConfig holds paths for the database, uploaded videos and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	UploadDir       string `yaml:"upload_dir"`
	TranscriptDir   string `yaml:"transcript_dir"`
	VectorIndexPath string `yaml:"vector_index_path"` // prefix; .index and .metadata.json are appended
	BleveIndexPath  string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"` // fastembed, onnx, openai, ollama, mock
	Model         string `yaml:"model"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	OutputName    string `yaml:"output_name"`
	Dimensions    int    `yaml:"dimensions"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	BatchSize     int    `yaml:"batch_size"`
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	CacheDir      string `yaml:"cache_dir"`
	Lazy          bool   `yaml:"lazy"`
}

// TranscriptionConfig selects and configures the speech-to-text provider.
type TranscriptionConfig struct {
	Provider       string `yaml:"provider"` // whisper, sidecar
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Language       string `yaml:"language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	IndexType       string `yaml:"index_type"` // memory, faiss
	PersistOnIngest *bool  `yaml:"persist_on_ingest"`
}

// PersistOnIngestOrDefault reports whether the store is saved after each ingestion; defaults to true.
func (v *VectorConfig) PersistOnIngestOrDefault() bool {
	if v.PersistOnIngest != nil {
		return *v.PersistOnIngest
	}
	return true
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultTopK    int  `yaml:"default_top_k"`
	MaxTopK        int  `yaml:"max_top_k"`
	KeywordEnabled bool `yaml:"keyword_enabled"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// IngestConfig holds bulk ingestion settings.
type IngestConfig struct {
	Patterns []string `yaml:"patterns"` // doublestar patterns relative to the ingested directory
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.TranscriptDir = expandPath(cfg.Storage.TranscriptDir, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.TokenizerPath != "" {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	}
	if cfg.Embedding.CacheDir != "" {
		cfg.Embedding.CacheDir = expandPath(cfg.Embedding.CacheDir, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
