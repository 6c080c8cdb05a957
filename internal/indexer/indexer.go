// Package indexer turns videos into searchable transcript segments: transcribe,
// segment, embed and add to the vector store and keyword index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hyperjump/mitsukeru/internal/embedding"
	"github.com/hyperjump/mitsukeru/internal/fileid"
	"github.com/hyperjump/mitsukeru/internal/keyword"
	"github.com/hyperjump/mitsukeru/internal/metrics"
	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/storage"
	"github.com/hyperjump/mitsukeru/internal/transcribe"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"go.uber.org/zap"
)

// ErrInProgress is returned when a video is already being processed.
var ErrInProgress = errors.New("video is already being processed")

// ProgressFunc reports bulk ingestion progress after each file.
type ProgressFunc func(processed, total int, currentFile string)

// Indexer ingests videos into the registry, the vector store and the keyword index.
type Indexer struct {
	storage       storage.Storage
	embedder      embedding.Embedder
	store         *vector.Store
	transcriber   transcribe.Transcriber
	keywordIndex  keyword.KeywordIndex // optional
	persistPrefix string               // when set, the store is saved after each processed video
	logger        *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (video processed, segments indexed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex also indexes segments for keyword search.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithPersistence saves the store under prefix after every processed video.
func WithPersistence(prefix string) IndexerOption {
	return func(idx *Indexer) { idx.persistPrefix = prefix }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	store *vector.Store,
	transcriber transcribe.Transcriber,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     storage,
		embedder:    embedder,
		store:       store,
		transcriber: transcriber,
		logger:      zap.NewNop(),
		inFlight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	return idx
}

// IndexTranscript segments raw, embeds every surviving segment in a single
// batch and adds the vectors with their metadata to the store. It returns the
// number of indexed segments. When no segment survives, the embedder is not called.
func (idx *Indexer) IndexTranscript(ctx context.Context, videoID string, raw []models.RawSegment) (int, error) {
	segments := Segment(videoID, raw)
	if len(segments) == 0 {
		idx.logger.Debug("indexer no segments to index", zap.String("video_id", videoID))
		return 0, nil
	}
	texts := make([]string, len(segments))
	entries := make([]models.MetadataEntry, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
		entries[i] = seg.Entry()
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(segments) {
		return 0, fmt.Errorf("%w: embedder returned %d vectors for %d segments",
			vector.ErrLengthMismatch, len(vectors), len(segments))
	}
	if err := idx.store.Add(ctx, vectors, entries); err != nil {
		return 0, fmt.Errorf("failed to index vectors: %w", err)
	}
	metrics.SetStoreSize(idx.store.Count())

	// The store is append-only, so a keyword failure must not fail the video
	// after its vectors are in.
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexSegments(ctx, segments); err != nil {
			idx.logger.Warn("indexer keyword indexing failed", zap.String("video_id", videoID), zap.Error(err))
		}
	}
	idx.logger.Debug("indexer transcript indexed", zap.String("video_id", videoID), zap.Int("segments", len(segments)))
	return len(segments), nil
}

// ProcessVideo transcribes a registered video and indexes its transcript.
// A video already marked processed whose records are in the store returns its
// recorded count without being indexed again. On failure the video is marked failed with the error text.
func (idx *Indexer) ProcessVideo(ctx context.Context, videoID string) (*models.ProcessResponse, error) {
	if !idx.begin(videoID) {
		return nil, fmt.Errorf("%s: %w", videoID, ErrInProgress)
	}
	defer idx.end(videoID)

	video, err := idx.storage.GetVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	if video.Status == models.VideoStatusProcessed {
		// Add is all-or-nothing per call, so the store holds either every
		// segment of the video or none of them.
		if idx.store.VideoCount(videoID) >= video.SegmentsCount {
			idx.logger.Debug("indexer video already processed", zap.String("video_id", videoID))
			return processed(video.ID, video.SegmentsCount), nil
		}
		idx.logger.Warn("indexer video marked processed but missing from store, re-indexing",
			zap.String("video_id", videoID),
			zap.Int("segments", video.SegmentsCount))
	}
	if !storage.Exists(video.Path) {
		return nil, fmt.Errorf("video file %s: %w", video.Path, storage.ErrNotFound)
	}
	if err := idx.storage.UpdateVideoStatus(ctx, videoID, models.VideoStatusProcessing, 0, ""); err != nil {
		return nil, fmt.Errorf("failed to mark video processing: %w", err)
	}

	started := time.Now()
	count, err := idx.process(ctx, video)
	metrics.RecordIngest(count, started, err)
	if err != nil {
		if updErr := idx.storage.UpdateVideoStatus(context.WithoutCancel(ctx), videoID, models.VideoStatusFailed, 0, err.Error()); updErr != nil {
			idx.logger.Error("indexer failed to mark video failed", zap.String("video_id", videoID), zap.Error(updErr))
		}
		idx.logger.Error("indexer video processing failed", zap.String("video_id", videoID), zap.Error(err))
		return nil, err
	}
	if err := idx.storage.UpdateVideoStatus(ctx, videoID, models.VideoStatusProcessed, count, ""); err != nil {
		return nil, fmt.Errorf("failed to mark video processed: %w", err)
	}
	idx.persist()
	idx.logger.Info("indexer video processed",
		zap.String("video_id", videoID),
		zap.Int("segments", count),
		zap.Duration("took", time.Since(started)))
	return processed(videoID, count), nil
}

func (idx *Indexer) process(ctx context.Context, video *models.Video) (int, error) {
	raw, err := idx.transcriber.Transcribe(ctx, video.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to transcribe %s: %w", video.Filename, err)
	}
	if err := idx.storage.SaveTranscript(ctx, video.ID, raw); err != nil {
		return 0, fmt.Errorf("failed to store transcript: %w", err)
	}
	return idx.IndexTranscript(ctx, video.ID, raw)
}

func processed(videoID string, count int) *models.ProcessResponse {
	return &models.ProcessResponse{
		Status:        string(models.VideoStatusProcessed),
		VideoID:       videoID,
		SegmentsCount: count,
	}
}

func (idx *Indexer) begin(videoID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.inFlight[videoID]; ok {
		return false
	}
	idx.inFlight[videoID] = struct{}{}
	return true
}

func (idx *Indexer) end(videoID string) {
	idx.mu.Lock()
	delete(idx.inFlight, videoID)
	idx.mu.Unlock()
}

// Persist saves the store under the configured prefix. It is a no-op without one.
func (idx *Indexer) Persist() error {
	if idx.persistPrefix == "" {
		return nil
	}
	err := idx.store.Save(idx.persistPrefix)
	metrics.RecordPersistence("save", err)
	return err
}

func (idx *Indexer) persist() {
	if err := idx.Persist(); err != nil {
		idx.logger.Error("indexer failed to persist store", zap.String("prefix", idx.persistPrefix), zap.Error(err))
	}
}

// RegisterFile adds a video file on disk to the registry under an ID derived
// from its absolute path. An already registered file returns its existing entry.
func (idx *Indexer) RegisterFile(ctx context.Context, path string) (*models.Video, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	id := fileid.VideoID(absPath)
	if existing, err := idx.storage.GetVideo(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up video: %w", err)
	}
	video := &models.Video{
		ID:          id,
		Filename:    filepath.Base(absPath),
		Path:        absPath,
		ContentType: contentType(absPath),
		SizeBytes:   info.Size(),
	}
	if err := idx.storage.CreateVideo(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to register video: %w", err)
	}
	idx.logger.Debug("indexer video registered", zap.String("path", absPath), zap.String("video_id", id))
	return video, nil
}

// IngestFile registers a video file and processes it.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*models.ProcessResponse, error) {
	video, err := idx.RegisterFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return idx.ProcessVideo(ctx, video.ID)
}

// IndexDirectory ingests every regular file under dir whose slash-separated
// path relative to dir matches one of patterns. It keeps going past failed
// files and returns the number ingested along with the joined errors.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, patterns []string, progress ProgressFunc) (int, error) {
	files, err := MatchFiles(dir, patterns)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := idx.IngestFile(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		} else {
			n++
		}
		if progress != nil {
			progress(i+1, len(files), path)
		}
	}
	return n, errors.Join(errs...)
}

// MatchFiles walks dir and returns the sorted absolute paths of regular files
// matching any of the doublestar patterns. No patterns matches every file.
func MatchFiles(dir string, patterns []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	var files []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return relErr
		}
		if !matchAny(patterns, filepath.ToSlash(rel)) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "video/" + strings.TrimPrefix(ext, ".")
}
