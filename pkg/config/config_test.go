package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

func (s *sample) Validate() error {
	if s.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("XQ_TEST_NAME", "notes")
	path := writeFile(t, "name: ${XQ_TEST_NAME}\nlimit: 3\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "notes" || s.Limit != 3 {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "limit: -1\n")
	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional_MissingKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Limit: 7}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Limit != 7 {
		t.Errorf("defaults changed: %+v", s)
	}
}

func TestLoadOptional_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "limit: 9\n")
	s := sample{Name: "default", Limit: 7}
	if err := LoadOptional(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" || s.Limit != 9 {
		t.Errorf("loaded = %+v", s)
	}
}
