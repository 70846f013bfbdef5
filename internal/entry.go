// Package internal wires configuration, the index and the retrieval service
// into the xq commands.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/starford/xq/internal/api"
	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/index"
	"github.com/starford/xq/internal/indexer"
	"github.com/starford/xq/internal/mcpserver"
	"github.com/starford/xq/internal/noteservice"
	"github.com/starford/xq/internal/ranking"
	"github.com/starford/xq/internal/session"
	"github.com/starford/xq/internal/storage"
	"github.com/starford/xq/internal/tui"
)

// ErrNoTerminal is returned by Query when stdin or stderr is not a terminal.
var ErrNoTerminal = errors.New("interactive session requires a terminal")

// recordTimeout bounds how long Query waits for the selection commit.
const recordTimeout = 2 * time.Second

// runtime is the set of components one command works with.
type runtime struct {
	app     *application
	cfg     *Config
	logger  *slog.Logger
	db      *index.DB
	source  *storage.FS
	indexer *indexer.Indexer
	svc     *noteservice.Service
}

func open(opts []Option) (*runtime, error) {
	app := &application{
		version: "dev",
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	level := cfg.App.LogLevel
	if app.verbose {
		level = slog.LevelDebug
	}
	// stdout carries results; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(app.stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	dbPath, lockPath, err := cfg.Index.Paths()
	if err != nil {
		return nil, fmt.Errorf("resolve index path: %w", err)
	}
	if app.dbPath != "" {
		dbPath = app.dbPath
		lockPath = filepath.Join(filepath.Dir(dbPath), LockFile)
	}

	logger.Debug("Configuration loaded",
		slog.String("db_path", dbPath),
		slog.String("source_glob", cfg.Source.Glob),
		slog.String("log_level", level.String()))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	source := storage.NewFS()
	idx := indexer.New(db, source, logger,
		indexer.WithWorkers(cfg.Indexer.Workers),
		indexer.WithBatchSize(cfg.Indexer.BatchSize),
		indexer.WithIndexPlain(cfg.Indexer.IndexPlain),
		indexer.WithLockFile(lockPath),
	)
	svc := noteservice.NewService(db, source, logger,
		noteservice.WithWeights(cfg.Ranking.Weights()),
		noteservice.WithLimit(cfg.Session.ResultLimit),
		noteservice.WithIndexer(idx, cfg.Source.Glob),
	)

	return &runtime{
		app:     app,
		cfg:     cfg,
		logger:  logger,
		db:      db,
		source:  source,
		indexer: idx,
		svc:     svc,
	}, nil
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Error("close index failed", slog.String("error", err.Error()))
	}
}

// Update runs one indexing pass over pattern, or over the configured source
// glob when pattern is empty.
func Update(ctx context.Context, pattern string, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	sum, err := rt.svc.Update(ctx, pattern)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	for _, s := range sum.Skipped {
		rt.logger.Warn("not indexed", slog.String("path", s.Path), slog.String("reason", s.Err.Error()))
	}
	rt.logger.Info("update finished",
		slog.Int("scanned", sum.Scanned),
		slog.Int("indexed", sum.Indexed),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("orphaned", sum.Orphaned),
		slog.Int("skipped", len(sum.Skipped)),
		slog.Uint64("generation", sum.Generation))
	return nil
}

// GC removes documents whose files are gone from the index.
func GC(ctx context.Context, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.svc.GC(ctx); err != nil {
		return fmt.Errorf("gc: %w", err)
	}
	return nil
}

// selection is the structured record written by Query in JSON mode.
type selection struct {
	Query string `json:"query"`
	ranking.Ranked
}

// Query runs an interactive session seeded with text. On selection the
// chosen path, or a JSON record when asJSON is set, is written to stdout.
// A cancelled session returns apperr.ErrCancelled.
func Query(ctx context.Context, text string, asJSON bool, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if !isatty.IsTerminal(os.Stdin.Fd()) || !isTerminal(rt.app.stderr) {
		return ErrNoTerminal
	}

	ctrl := session.New(ctx, rt.svc, rt.logger,
		session.WithQuery(text),
		session.WithRecorder(rt.svc.Select),
	)
	snap, err := tui.Run(ctx, ctrl, rt.app.stderr)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if snap.State != session.Selected {
		return apperr.ErrCancelled
	}
	if !ctrl.WaitRecorded(recordTimeout) {
		rt.logger.Warn("selection not recorded before exit", slog.String("id", snap.Selected.ID))
	}

	if !asJSON {
		_, err = fmt.Fprintln(rt.app.stdout, snap.Selected.Path)
		return err
	}
	rec := selection{Ranked: *snap.Selected}
	if snap.Query != nil {
		rec.Query = snap.Query.String()
	}
	return json.NewEncoder(rt.app.stdout).Encode(rec)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Watch keeps the index in sync with pattern until interrupted.
func Watch(ctx context.Context, pattern string, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if pattern == "" {
		pattern = rt.cfg.Source.Glob
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := rt.indexer.UpdatePattern(ctx, pattern); err != nil {
		return fmt.Errorf("watch: initial update: %w", err)
	}
	err = rt.indexer.Watch(ctx, pattern, indexer.DefaultDebounce, rt.logPass)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

func (rt *runtime) logPass(sum *indexer.Summary) {
	rt.logger.Info("Watch pass finished",
		slog.Int("indexed", sum.Indexed),
		slog.Int("orphaned", sum.Orphaned),
		slog.Int("skipped", len(sum.Skipped)),
		slog.Uint64("generation", sum.Generation))
}

// Serve exposes the HTTP API and keeps the index in sync with the configured
// source glob.
func Serve(ctx context.Context, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.Generation(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := rt.indexer.Watch(gCtx, cfg.Source.Glob, indexer.DefaultDebounce, rt.logPass)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the errgroup's remaining goroutines after a signal.
var errShutdown = errors.New("shutdown")

// MCP serves the MCP tools over stdio.
func MCP(ctx context.Context, opts ...Option) error {
	rt, err := open(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt.logger.Info("Starting MCP server (stdio)")
	err = mcpserver.New(rt.svc, rt.app.version).ServeStdio(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
