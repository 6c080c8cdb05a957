package config

const dataRoot = "/usr/local/var/mitsukeru/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 2048
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = dataRoot + "/db/videos.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = dataRoot + "/uploads"
	}
	if cfg.Storage.TranscriptDir == "" {
		cfg.Storage.TranscriptDir = dataRoot + "/transcripts"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = dataRoot + "/vector_db/index"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = dataRoot + "/indices/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "fastembed"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheDir == "" {
		cfg.Embedding.CacheDir = dataRoot + "/models"
	}
	if cfg.Transcription.Provider == "" {
		cfg.Transcription.Provider = "whisper"
	}
	if cfg.Transcription.BaseURL == "" {
		cfg.Transcription.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = "base"
	}
	if cfg.Transcription.TimeoutSeconds == 0 {
		cfg.Transcription.TimeoutSeconds = 600
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if cfg.Ingest.Patterns == nil {
		cfg.Ingest.Patterns = []string{"**/*.{mp4,mov,mkv,webm,avi,m4v}"}
	}
}
