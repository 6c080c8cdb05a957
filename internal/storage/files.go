package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultVideoExt is used when an upload has no usable extension.
const DefaultVideoExt = ".mp4"

// FileStore keeps uploaded video files in a single directory, named {id}{ext}.
type FileStore struct {
	dir string
}

// NewFileStore creates the upload directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the upload directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Save streams r into a new file with a generated ID. The file appears under
// its final name only after it is fully written.
func (f *FileStore) Save(r io.Reader, originalName string) (id, path string, size int64, err error) {
	id = uuid.NewString()
	path = filepath.Join(f.dir, id+videoExt(originalName))

	tmp, err := os.CreateTemp(f.dir, ".upload-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	size, err = io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", "", 0, fmt.Errorf("failed to write upload: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", "", 0, fmt.Errorf("failed to close upload: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", "", 0, fmt.Errorf("failed to store upload: %w", err)
	}
	return id, path, size, nil
}

// Exists reports whether path is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func videoExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 6 || strings.ContainsAny(ext, `/\ `) {
		return DefaultVideoExt
	}
	return ext
}
