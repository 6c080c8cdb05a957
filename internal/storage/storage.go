// Package storage persists the video registry, raw transcripts and uploaded files.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/mitsukeru/internal/models"
)

// ErrNotFound is returned when a video or transcript does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines video registry and transcript persistence operations.
type Storage interface {
	// Video operations
	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context, offset, limit int) ([]*models.Video, error)
	UpdateVideoStatus(ctx context.Context, id string, status models.VideoStatus, segmentsCount int, errMsg string) error

	// Transcript operations
	SaveTranscript(ctx context.Context, videoID string, segments []models.RawSegment) error
	GetTranscript(ctx context.Context, videoID string) ([]models.RawSegment, error)

	// Stats
	CountVideos(ctx context.Context) (int64, error)
	CountTranscriptSegments(ctx context.Context) (int64, error)

	Close() error
}
