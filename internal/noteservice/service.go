// Package noteservice is the retrieval facade shared by the interactive
// session, the HTTP API and the MCP server: it compiles, searches, ranks and
// hides results whose file has disappeared.
package noteservice

import (
	"context"
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/index"
	"github.com/starford/xq/internal/indexer"
	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/query"
	"github.com/starford/xq/internal/ranking"
	"github.com/starford/xq/internal/storage"
)

const (
	// DefaultLimit caps the number of results returned by a search.
	DefaultLimit = 200

	docCacheSize = 256
)

// ErrNoIndexer is returned by Update and GC on a read-only service.
var ErrNoIndexer = errors.New("noteservice: no indexer configured")

type cacheKey struct {
	generation uint64
	id         string
}

// Service coordinates the index store, the source files and the indexer.
type Service struct {
	db      index.Store
	source  storage.Provider
	indexer *indexer.Indexer
	pattern string
	weights ranking.Weights
	limit   int
	logger  *slog.Logger
	docs    *lru.Cache[cacheKey, *models.Document]
}

// Option configures a Service.
type Option func(*Service)

// WithWeights sets the ranking weights.
func WithWeights(w ranking.Weights) Option {
	return func(s *Service) { s.weights = w }
}

// WithLimit caps the number of results; zero or less means no cap.
func WithLimit(n int) Option {
	return func(s *Service) { s.limit = n }
}

// WithIndexer enables Update and GC. pattern is indexed when Update is
// called without one.
func WithIndexer(idx *indexer.Indexer, pattern string) Option {
	return func(s *Service) {
		s.indexer = idx
		s.pattern = pattern
	}
}

// NewService creates a new retrieval service.
func NewService(db index.Store, source storage.Provider, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:      db,
		source:  source,
		weights: ranking.DefaultWeights(),
		limit:   DefaultLimit,
		logger:  logger,
	}
	// lru.New only fails for a non-positive size.
	s.docs, _ = lru.New[cacheKey, *models.Document](docCacheSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search compiles raw and runs it. A malformed query returns a
// *apperr.QuerySyntaxError.
func (s *Service) Search(ctx context.Context, raw string) ([]ranking.Ranked, error) {
	q, err := query.Compile(raw)
	if err != nil {
		return nil, err
	}
	return s.SearchQuery(ctx, q)
}

// SearchQuery evaluates q against the current generation and returns the
// ranked results. Results whose file no longer exists are skipped.
func (s *Service) SearchQuery(ctx context.Context, q *query.Query) ([]ranking.Ranked, error) {
	res, err := s.db.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	ranked := s.weights.Rank(res.Hits)

	out := make([]ranking.Ranked, 0, len(ranked))
	for _, r := range ranked {
		if s.limit > 0 && len(out) >= s.limit {
			break
		}
		ok, err := s.source.Exists(r.Path)
		if err != nil {
			s.logger.Warn("search: stat failed", slog.String("path", r.Path), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			stale := &apperr.StaleReferenceError{ID: r.ID, Path: r.Path}
			s.logger.Debug("search: skipped result", slog.String("error", stale.Error()))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns the stored document. Entries are cached per generation, so a
// commit never serves an outdated document.
func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	gen, err := s.db.Generation(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey{generation: gen, id: id}
	if doc, ok := s.docs.Get(key); ok {
		return doc, nil
	}
	doc, err := s.db.GetStored(ctx, id)
	if err != nil {
		return nil, err
	}
	s.docs.Add(key, doc)
	return doc, nil
}

// Select records that the user picked id.
func (s *Service) Select(ctx context.Context, id string) error {
	if err := ranking.RecordSelection(ctx, s.db, id); err != nil {
		return err
	}
	s.logger.Debug("selection recorded", slog.String("id", id))
	return nil
}

// Update runs an indexing pass over pattern, or over the default pattern
// when it is empty.
func (s *Service) Update(ctx context.Context, pattern string) (*indexer.Summary, error) {
	if s.indexer == nil {
		return nil, ErrNoIndexer
	}
	if pattern == "" {
		pattern = s.pattern
	}
	return s.indexer.UpdatePattern(ctx, pattern)
}

// GC removes orphaned documents.
func (s *Service) GC(ctx context.Context) (*indexer.GCSummary, error) {
	if s.indexer == nil {
		return nil, ErrNoIndexer
	}
	return s.indexer.GC(ctx)
}
