package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/xq/internal/apperr"
)

func tempNotes(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		p := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestExpand_Directory(t *testing.T) {
	dir := tempNotes(t, "a.md", "sub/b.md", "c.txt", ".git/d.md")
	got, err := NewFS().Expand(dir)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "sub", "b.md")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpand_Glob(t *testing.T) {
	dir := tempNotes(t, "a.md", "b.md", "c.txt", "sub/d.md")
	got, err := NewFS().Expand(filepath.Join(dir, "*.md"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.md")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpand_DoubleStar(t *testing.T) {
	dir := tempNotes(t, "top.md", "sub/a.md", "sub/s2/more.md", "sub/s2/skip.txt", "other/b.md")
	cases := []struct {
		pattern string
		want    []string
	}{
		{
			pattern: filepath.Join(dir, "**", "*.md"),
			want: []string{
				filepath.Join(dir, "other", "b.md"),
				filepath.Join(dir, "sub", "a.md"),
				filepath.Join(dir, "sub", "s2", "more.md"),
				filepath.Join(dir, "top.md"),
			},
		},
		{
			pattern: filepath.Join(dir, "sub", "**", "*.md"),
			want: []string{
				filepath.Join(dir, "sub", "a.md"),
				filepath.Join(dir, "sub", "s2", "more.md"),
			},
		},
		{
			pattern: filepath.Join(dir, "**", "s2", "*"),
			want: []string{
				filepath.Join(dir, "sub", "s2", "more.md"),
				filepath.Join(dir, "sub", "s2", "skip.txt"),
			},
		},
	}
	for _, tc := range cases {
		got, err := NewFS().Expand(tc.pattern)
		if err != nil {
			t.Fatalf("Expand(%s): %v", tc.pattern, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Expand(%s) = %v, want %v", tc.pattern, got, tc.want)
		}
	}
}

func TestExpand_BadPattern(t *testing.T) {
	if _, err := NewFS().Expand("[unclosed"); err == nil {
		t.Error("expected an error for a malformed pattern")
	}
}

func TestReadAndExists(t *testing.T) {
	dir := tempNotes(t, "a.md")
	s := NewFS()

	data, err := s.Read(filepath.Join(dir, "a.md"))
	if err != nil || string(data) != "x" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	_, err = s.Read(filepath.Join(dir, "missing.md"))
	if !errors.Is(err, apperr.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}

	if ok, err := s.Exists(filepath.Join(dir, "a.md")); !ok || err != nil {
		t.Errorf("Exists(a.md) = %v, %v", ok, err)
	}
	if ok, err := s.Exists(filepath.Join(dir, "missing.md")); ok || err != nil {
		t.Errorf("Exists(missing.md) = %v, %v", ok, err)
	}
	if ok, _ := s.Exists(dir); ok {
		t.Error("a directory is not a note file")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandHome("~/.xq-data")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, ".xq-data") {
		t.Errorf("got %q", got)
	}
	if got, _ := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
