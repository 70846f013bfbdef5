// Package storage gives the indexer read access to the user's note files.
package storage

// Provider resolves candidate paths and reads source files. Paths are
// absolute and cleaned.
type Provider interface {
	// Expand resolves a glob pattern or a directory into the candidate
	// files it names, sorted.
	Expand(pattern string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a regular file is present at path.
	Exists(path string) (bool, error)
}
