// Package checksum derives content hashes and document identifiers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DocID returns the stable identifier for the document stored at path.
// The path is cleaned first so that equivalent spellings map to one id.
func DocID(path string) string {
	h := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(h[:16])
}
