// Package testutil provides shared test helpers for setting up note
// directories and index databases.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/xq/internal/index"
)

// TestDB creates a temporary index database that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNotes writes files (name -> content) into a fresh directory and
// returns its path.
func TestNotes(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		WriteNote(t, dir, name, content)
	}
	return dir
}

// WriteNote creates or replaces dir/name.
func WriteNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Note renders a minimal note with the given title, tags and body.
func Note(title, body string, tags ...string) string {
	s := "---\ntitle: " + title + "\n"
	if len(tags) > 0 {
		s += "tags:\n"
		for _, tag := range tags {
			s += "  - " + tag + "\n"
		}
	}
	return s + "---\n" + body + "\n"
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
