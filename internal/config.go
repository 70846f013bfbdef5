package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/xq/internal/ranking"
	"github.com/starford/xq/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Files kept inside the index directory.
const (
	DatabaseFile = "index.db"
	LockFile     = "update.lock"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Index   IndexConfig       `yaml:"index"`
	Source  SourceConfig      `yaml:"source"`
	Indexer IndexerConfig     `yaml:"indexer"`
	Ranking RankingConfig     `yaml:"ranking"`
	Session SessionConfig     `yaml:"session"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Indexer.Validate(); err != nil {
		return err
	}
	if err := c.Ranking.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// IndexConfig locates the index directory.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// Paths returns the database and lock file locations with a leading ~ of
// Path expanded.
func (c *IndexConfig) Paths() (db, lock string, err error) {
	dir, err := storage.ExpandHome(c.Path)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, DatabaseFile), filepath.Join(dir, LockFile), nil
}

// SourceConfig holds the default pattern used when update gets no argument.
type SourceConfig struct {
	Glob string `yaml:"glob"`
}

// IndexerConfig tunes indexing passes.
//
// Workers == 0 uses GOMAXPROCS. BatchSize == 0 commits once per pass.
type IndexerConfig struct {
	Workers    int  `yaml:"workers"`
	BatchSize  int  `yaml:"batch_size"`
	IndexPlain bool `yaml:"index_plain"`
}

// Validate validates the indexer configuration.
func (c *IndexerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.BatchSize, validation.Min(0)),
	)
}

// RankingConfig parameterizes the usage boost.
type RankingConfig struct {
	UsageCap   float64 `yaml:"usage_cap"`
	UsageScale float64 `yaml:"usage_scale"`
}

// Validate validates the ranking configuration.
func (c *RankingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UsageCap, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.UsageScale, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

// Weights converts the section into ranking weights.
func (c *RankingConfig) Weights() ranking.Weights {
	return ranking.Weights{Cap: c.UsageCap, Scale: c.UsageScale}
}

// SessionConfig tunes interactive and API searches.
type SessionConfig struct {
	ResultLimit int `yaml:"result_limit"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ResultLimit, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	w := ranking.DefaultWeights()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Index: IndexConfig{
			Path: "~/.xq-data",
		},
		Source: SourceConfig{
			Glob: ".",
		},
		Ranking: RankingConfig{
			UsageCap:   w.Cap,
			UsageScale: w.Scale,
		},
		Session: SessionConfig{
			ResultLimit: 200,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
