package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	dbPath  string
	verbose bool
	version string
	stdout  io.Writer
	stderr  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDBPath overrides the database file from the configuration. The lock
// file is kept next to it.
func WithDBPath(path string) Option {
	return func(a *application) {
		a.dbPath = path
	}
}

// WithVerbose enables debug logging.
func WithVerbose(on bool) Option {
	return func(a *application) {
		a.verbose = on
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput redirects the results stream and the log/UI stream.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *application) {
		a.stdout = stdout
		a.stderr = stderr
	}
}
