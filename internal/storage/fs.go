package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/xq/internal/apperr"
)

// NoteExt is the extension collected when a directory is given as pattern.
const NoteExt = ".md"

// FS implements Provider on the local file system.
type FS struct{}

// NewFS returns the local file system provider.
func NewFS() *FS {
	return &FS{}
}

// Expand resolves pattern. A leading "~" is replaced with the home directory.
// A directory is walked recursively for Markdown files, skipping hidden
// directories; anything else is a glob where "**" spans any number of
// directories.
func (f *FS) Expand(pattern string) ([]string, error) {
	pattern, err := ExpandHome(pattern)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		return walkDir(pattern)
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("storage: bad pattern %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve %s: %w", m, err)
		}
		out = append(out, abs)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func walkDir(root string) ([]string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), NoteExt) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk %s: %w", base, err)
	}
	slices.Sort(out)
	return out, nil
}

// Read returns the raw bytes of the file at path.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.IOError{Path: path, Op: "read", Err: err}
	}
	return data, nil
}

// Exists reports whether a regular file is present at path.
func (f *FS) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &apperr.IOError{Path: path, Op: "stat", Err: err}
	}
	return info.Mode().IsRegular(), nil
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storage: home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
