package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		segments_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		video_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		PRIMARY KEY (video_id, seq),
		FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateVideo inserts a video. CreatedAt and Status are set when empty.
func (s *SQLiteStorage) CreateVideo(ctx context.Context, video *models.Video) error {
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now()
	}
	if video.Status == "" {
		video.Status = models.VideoStatusUploaded
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (id, filename, path, content_type, size_bytes, status, segments_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		video.ID, video.Filename, video.Path, video.ContentType, video.SizeBytes,
		string(video.Status), video.SegmentsCount, video.Error, video.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video %s: %w", video.ID, err)
	}
	return nil
}

const videoColumns = `id, filename, path, content_type, size_bytes, status, segments_count, error, created_at, processed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var status string
	var contentType sql.NullString
	var processedAt sql.NullTime
	if err := row.Scan(&v.ID, &v.Filename, &v.Path, &contentType, &v.SizeBytes, &status,
		&v.SegmentsCount, &v.Error, &v.CreatedAt, &processedAt); err != nil {
		return nil, err
	}
	v.ContentType = contentType.String
	v.Status = models.VideoStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		v.ProcessedAt = &t
	}
	return &v, nil
}

// GetVideo returns a video by ID.
func (s *SQLiteStorage) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVideos returns videos, newest first.
func (s *SQLiteStorage) ListVideos(ctx context.Context, offset, limit int) ([]*models.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateVideoStatus records a status transition. ProcessedAt is stamped when status is processed.
func (s *SQLiteStorage) UpdateVideoStatus(ctx context.Context, id string, status models.VideoStatus, segmentsCount int, errMsg string) error {
	var processedAt interface{}
	if status == models.VideoStatusProcessed {
		processedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, segments_count = ?, error = ?, processed_at = COALESCE(?, processed_at)
		 WHERE id = ?`,
		string(status), segmentsCount, errMsg, processedAt, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveTranscript replaces the stored transcript of a video.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, videoID string, segments []models.RawSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE video_id = ?`, videoID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_segments (video_id, seq, text, start_sec, end_sec) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.ExecContext(ctx, videoID, i, seg.Text, seg.Start, seg.End); err != nil {
			return fmt.Errorf("failed to insert transcript segment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetTranscript returns the stored transcript of a video in original order.
func (s *SQLiteStorage) GetTranscript(ctx context.Context, videoID string) ([]models.RawSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, start_sec, end_sec FROM transcript_segments WHERE video_id = ? ORDER BY seq`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := make([]models.RawSegment, 0)
	for rows.Next() {
		var seg models.RawSegment
		if err := rows.Scan(&seg.Text, &seg.Start, &seg.End); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		if _, err := s.GetVideo(ctx, videoID); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// CountVideos returns the number of registered videos.
func (s *SQLiteStorage) CountVideos(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n)
	return n, err
}

// CountTranscriptSegments returns the number of archived transcript segments.
func (s *SQLiteStorage) CountTranscriptSegments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcript_segments`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
