// Package models defines core data structures for videos, transcript segments, queries, and search results.
package models

import "time"

// VideoStatus is the processing state of an uploaded video.
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusProcessed  VideoStatus = "processed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is a registered video file.
type Video struct {
	ID            string      `json:"id" db:"id"`
	Filename      string      `json:"filename" db:"filename"`
	Path          string      `json:"path" db:"path"`
	ContentType   string      `json:"content_type" db:"content_type"`
	SizeBytes     int64       `json:"size_bytes" db:"size_bytes"`
	Status        VideoStatus `json:"status" db:"status"`
	SegmentsCount int         `json:"segments_count" db:"segments_count"`
	Error         string      `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
}
