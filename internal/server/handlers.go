package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/embedding"
	"github.com/hyperjump/mitsukeru/internal/indexer"
	"github.com/hyperjump/mitsukeru/internal/metrics"
	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/search"
	"github.com/hyperjump/mitsukeru/internal/storage"
	"github.com/hyperjump/mitsukeru/internal/transcribe"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"go.uber.org/zap"
)

const defaultMaxUploadMB = 2048

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, transcribe.ErrNoTranscript):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrDimensionMismatch),
		errors.Is(err, vector.ErrInvalidTopK),
		errors.Is(err, search.ErrKeywordDisabled),
		errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, indexer.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, transcribe.ErrTranscriptionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Mitsukeru semantic video search API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		s.respondError(w, http.StatusNotImplemented, "uploads not enabled")
		return
	}
	maxMB := int64(defaultMaxUploadMB)
	if s.config != nil && s.config.MaxUploadMB > 0 {
		maxMB = s.config.MaxUploadMB
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMB<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		s.respondError(w, http.StatusBadRequest, "File must be a video.")
		return
	}
	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.String("content_type", contentType))

	id, path, size, err := s.files.Save(file, header.Filename)
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	video := &models.Video{
		ID:          id,
		Filename:    header.Filename,
		Path:        path,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if err := s.storage.CreateVideo(r.Context(), video); err != nil {
		_ = os.Remove(path)
		s.logger.Error("upload: register video failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "success", "video_id": id})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "video_id")
	s.logger.Debug("process request", zap.String("video_id", id))
	resp, err := s.indexer.ProcessVideo(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, "Video not found.")
			return
		}
		s.logger.Error("processing failed", zap.String("video_id", id), zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{
		Query:   strings.TrimSpace(q.Get("query")),
		VideoID: q.Get("video_id"),
		Mode:    models.SearchMode(q.Get("mode")),
	}
	if raw := q.Get("top_k"); raw != "" {
		topK, err := strconv.Atoi(raw)
		if err != nil || topK < 1 {
			s.respondError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		query.TopK = topK
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.String("video_id", query.VideoID),
		zap.Int("top_k", query.TopK))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	videos, err := s.storage.ListVideos(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list videos failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"videos": videos, "offset": offset, "limit": limit})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	video, err := s.storage.GetVideo(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), "video not found")
		return
	}
	s.respondJSON(w, http.StatusOK, video)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	segments, err := s.storage.GetTranscript(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			s.respondError(w, status, "transcript not found")
			return
		}
		s.logger.Error("get transcript failed", zap.String("video_id", id), zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"video_id": id, "segments": segments})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoCount, err := s.storage.CountVideos(ctx)
	if err != nil {
		s.logger.Error("status: count videos failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	segmentCount, err := s.storage.CountTranscriptSegments(ctx)
	if err != nil {
		s.logger.Error("status: count segments failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"videos":              videoCount,
		"transcript_segments": segmentCount,
		"vector_store_size":   s.store.Count(),
		"keyword_enabled":     s.engine.KeywordEnabled(),
	}
	metrics.SetStoreSize(s.store.Count())

	configInfo := map[string]interface{}{
		"vector_index_type":    s.store.Type(),
		"embedding_dimensions": s.store.Dimensions(),
		"score_kind":           models.ScoreL2Squared,
	}
	if s.fullConfig != nil {
		configInfo["embedding_provider"] = s.fullConfig.Embedding.Provider
		configInfo["embedding_model"] = s.fullConfig.Embedding.Model
		configInfo["transcription_provider"] = s.fullConfig.Transcription.Provider
		configInfo["database_path"] = s.fullConfig.Storage.DatabasePath
		configInfo["upload_dir"] = s.fullConfig.Storage.UploadDir
		configInfo["vector_index_path"] = s.fullConfig.Storage.VectorIndexPath
		configInfo["bleve_index_path"] = s.fullConfig.Storage.BleveIndexPath

		diskBytes, err := storage.DiskUsageBytes(
			s.fullConfig.Storage.DatabasePath,
			s.fullConfig.Storage.UploadDir,
			s.fullConfig.Storage.BleveIndexPath,
			vector.IndexPath(s.fullConfig.Storage.VectorIndexPath),
			vector.MetadataPath(s.fullConfig.Storage.VectorIndexPath),
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveIndex(w http.ResponseWriter, r *http.Request) {
	if s.fullConfig == nil || s.fullConfig.Storage.VectorIndexPath == "" {
		s.respondError(w, http.StatusNotImplemented, "vector index path not configured")
		return
	}
	prefix := s.fullConfig.Storage.VectorIndexPath
	err := s.store.Save(prefix)
	metrics.RecordPersistence("save", err)
	if err != nil {
		s.logger.Error("save index failed", zap.String("prefix", prefix), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "saved", "count": s.store.Count()})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchConfig()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchConfig()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchConfig() {
	if s.configPath == "" || s.fullConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	defer s.watchConfigMu.Unlock()
	s.fullConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.fullConfig); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes the message under both "error" and "detail".
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "detail": message})
}
