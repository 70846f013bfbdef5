// Package indexer keeps the index in step with the note files: it hashes and
// parses candidates on a bounded worker pool, stages every change through a
// single writer and commits once per pass (or per batch).
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/checksum"
	"github.com/starford/xq/internal/index"
	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/parser"
	"github.com/starford/xq/internal/storage"
)

// Indexer runs indexing and garbage-collection passes. Only one pass runs
// at a time, across processes when a lock file is configured.
type Indexer struct {
	store      index.Store
	source     storage.Provider
	logger     *slog.Logger
	workers    int
	batchSize  int
	indexPlain bool
	lock       *flock.Flock
	now        func() time.Time

	mu sync.Mutex
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithWorkers bounds the number of files hashed and parsed concurrently.
func WithWorkers(n int) Option {
	return func(i *Indexer) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithBatchSize commits after every n indexed documents instead of once per pass.
func WithBatchSize(n int) Option {
	return func(i *Indexer) { i.batchSize = n }
}

// WithIndexPlain indexes files without frontmatter under their file name
// instead of skipping them.
func WithIndexPlain(on bool) Option {
	return func(i *Indexer) { i.indexPlain = on }
}

// WithLockFile guards passes with an advisory lock on path.
func WithLockFile(path string) Option {
	return func(i *Indexer) { i.lock = flock.New(path) }
}

// WithClock overrides the clock used for last_indexed_at.
func WithClock(now func() time.Time) Option {
	return func(i *Indexer) { i.now = now }
}

// New creates an Indexer writing to store and reading from source.
func New(store index.Store, source storage.Provider, logger *slog.Logger, opts ...Option) *Indexer {
	i := &Indexer{
		store:   store,
		source:  source,
		logger:  logger,
		workers: runtime.GOMAXPROCS(0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SkippedFile is a candidate that could not be indexed.
type SkippedFile struct {
	Path string
	Err  error
}

// Summary reports the outcome of one indexing pass.
type Summary struct {
	Scanned    int
	Unchanged  int
	Indexed    int
	Orphaned   int
	Skipped    []SkippedFile
	Commits    int
	Generation uint64
}

// GCSummary reports the outcome of a garbage-collection pass.
type GCSummary struct {
	Removed    int
	Restored   int
	Generation uint64
}

type outcome struct {
	path      string
	hash      string
	doc       *models.Document
	unchanged bool
	err       error
}

// UpdatePattern expands pattern through the source and runs Update.
func (i *Indexer) UpdatePattern(ctx context.Context, pattern string) (*Summary, error) {
	paths, err := i.source.Expand(pattern)
	if err != nil {
		return nil, err
	}
	return i.Update(ctx, paths)
}

// Update runs one indexing pass over the candidate paths. Unchanged files
// are skipped after hashing. Tracked paths missing from the candidates are
// marked orphaned but stay searchable until GC. Per-file failures are
// collected in the summary; only store failures abort the pass.
func (i *Indexer) Update(ctx context.Context, paths []string) (*Summary, error) {
	unlock, err := i.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	candidates, err := normalize(paths)
	if err != nil {
		return nil, err
	}
	tracked, err := i.store.Tracked(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, i.workers)
	var poolErr error
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(i.workers)
		for _, p := range candidates {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o := i.inspect(p, tracked)
				select {
				case results <- o:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		poolErr = g.Wait()
		close(results)
	}()

	sum := &Summary{Scanned: len(candidates)}
	batch := i.store.NewBatch()
	pending := 0
	var writeErr error
	for o := range results {
		if writeErr != nil {
			continue
		}
		switch {
		case o.err != nil:
			sum.Skipped = append(sum.Skipped, SkippedFile{Path: o.path, Err: o.err})
			i.logger.Warn("update: skipped file", slog.String("path", o.path), slog.String("error", o.err.Error()))
		case o.unchanged:
			sum.Unchanged++
			if tracked[o.path].Orphaned {
				batch.Track(o.path, o.hash, tracked[o.path].ID)
			}
		default:
			batch.Upsert(o.doc)
			batch.Track(o.path, o.hash, o.doc.ID)
			sum.Indexed++
			pending++
			i.logger.Debug("update: indexed", slog.String("path", o.path), slog.String("id", o.doc.ID))
		}
		if i.batchSize > 0 && pending >= i.batchSize {
			if writeErr = i.commit(ctx, batch, sum); writeErr != nil {
				cancel()
			}
			pending = 0
		}
	}
	if writeErr != nil {
		return nil, writeErr
	}
	if poolErr != nil {
		return nil, poolErr
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		seen[p] = struct{}{}
	}
	for path, rec := range tracked {
		if _, ok := seen[path]; ok {
			continue
		}
		sum.Orphaned++
		if !rec.Orphaned {
			batch.MarkOrphaned(path)
		}
	}

	if err := i.commit(ctx, batch, sum); err != nil {
		return nil, err
	}
	if sum.Commits == 0 {
		if sum.Generation, err = i.store.Generation(ctx); err != nil {
			return nil, err
		}
	}

	i.logger.Info("update: pass complete",
		slog.Int("scanned", sum.Scanned),
		slog.Int("indexed", sum.Indexed),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("orphaned", sum.Orphaned),
		slog.Int("skipped", len(sum.Skipped)),
		slog.Uint64("generation", sum.Generation))
	return sum, nil
}

// inspect hashes one file and parses it only when its content changed.
func (i *Indexer) inspect(path string, tracked map[string]index.TrackedFile) outcome {
	data, err := i.source.Read(path)
	if err != nil {
		return outcome{path: path, err: err}
	}
	hash := checksum.Sum(data)
	if rec, ok := tracked[path]; ok && rec.Hash == hash {
		return outcome{path: path, hash: hash, unchanged: true}
	}

	doc, err := parser.Parse(path, data)
	if errors.Is(err, apperr.ErrNoFrontmatter) && i.indexPlain {
		doc, err = parser.ParsePlain(path, data), nil
	}
	if err != nil {
		return outcome{path: path, err: err}
	}
	doc.LastIndexedAt = i.now()
	return outcome{path: path, hash: hash, doc: doc}
}

func (i *Indexer) commit(ctx context.Context, batch index.Writer, sum *Summary) error {
	if batch.Len() == 0 {
		return nil
	}
	gen, err := batch.Commit(ctx)
	if err != nil {
		i.logger.Error("update: commit failed", slog.String("error", err.Error()))
		return err
	}
	sum.Commits++
	sum.Generation = gen
	return nil
}

// GC removes documents whose file no longer exists. Orphans whose file is
// still on disk are kept and lose their orphaned mark, since a pass over a
// narrower pattern orphans paths it never looked at. It is the only
// operation that deletes documents.
func (i *Indexer) GC(ctx context.Context) (*GCSummary, error) {
	unlock, err := i.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	tracked, err := i.store.Tracked(ctx)
	if err != nil {
		return nil, err
	}

	batch := i.store.NewBatch()
	sum := &GCSummary{}
	for _, path := range slices.Sorted(maps.Keys(tracked)) {
		rec := tracked[path]
		ok, err := i.source.Exists(path)
		if err != nil {
			i.logger.Warn("gc: stat failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if ok {
			if rec.Orphaned {
				batch.Track(path, rec.Hash, rec.ID)
				sum.Restored++
			}
			continue
		}
		batch.Remove(rec.ID)
		batch.Untrack(path)
		sum.Removed++
		i.logger.Debug("gc: removed", slog.String("path", path), slog.String("id", rec.ID))
	}

	if sum.Generation, err = batch.Commit(ctx); err != nil {
		return nil, err
	}
	i.logger.Info("gc: complete", slog.Int("removed", sum.Removed), slog.Int("restored", sum.Restored), slog.Uint64("generation", sum.Generation))
	return sum, nil
}

// acquire rejects a pass while another one holds the in-process mutex or
// the lock file.
func (i *Indexer) acquire() (func(), error) {
	if !i.mu.TryLock() {
		return nil, apperr.ErrIndexBusy
	}
	if i.lock == nil {
		return i.mu.Unlock, nil
	}
	ok, err := i.lock.TryLock()
	if err != nil {
		i.mu.Unlock()
		return nil, fmt.Errorf("indexer: lock %s: %w", i.lock.Path(), err)
	}
	if !ok {
		i.mu.Unlock()
		return nil, apperr.ErrIndexBusy
	}
	return func() {
		if err := i.lock.Unlock(); err != nil {
			i.logger.Warn("indexer: unlock failed", slog.String("error", err.Error()))
		}
		i.mu.Unlock()
	}, nil
}

func normalize(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("indexer: resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
