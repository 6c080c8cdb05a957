// Package fileid derives deterministic video IDs from file paths for ingested and watched files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "file-"

// idHexLen keeps IDs short enough for URLs while staying collision free in practice.
const idHexLen = 32

// VideoID returns a stable video ID for the given absolute path.
// Same path always yields the same ID, so re-ingesting a file finds its registry entry.
func VideoID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])[:idHexLen]
}
