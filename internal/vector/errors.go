package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrLengthMismatch is returned when vectors and metadata entries differ in count.
	ErrLengthMismatch = errors.New("vectors and metadata length mismatch")
	// ErrInvalidTopK is returned for a top_k below 1.
	ErrInvalidTopK = errors.New("top_k must be at least 1")
	// ErrCorruptState is returned when persisted artifacts disagree or cannot be decoded.
	ErrCorruptState = errors.New("corrupt index state")
	// ErrIO wraps read and write failures on persisted artifacts.
	ErrIO = errors.New("index i/o failure")
)
