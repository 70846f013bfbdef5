package index

import (
	"context"

	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/query"
)

// Store is the Index Store contract. Consumers depend on it rather than on
// *DB so the engine behind it can be replaced.
type Store interface {
	// NewBatch returns an empty staging area. Nothing staged is visible to
	// readers until the batch is committed.
	NewBatch() Writer
	Search(ctx context.Context, q *query.Query) (*Result, error)
	GetStored(ctx context.Context, id string) (*models.Document, error)
	Generation(ctx context.Context) (uint64, error)
	Tracked(ctx context.Context) (map[string]TrackedFile, error)
	Close() error
}

// Writer stages mutations for one atomic commit. A Writer is owned by a
// single goroutine.
type Writer interface {
	Upsert(doc *models.Document)
	Remove(id string)
	Track(path, hash, id string)
	Untrack(path string)
	MarkOrphaned(path string)
	IncrementAccess(id string)
	Len() int
	// Commit publishes everything staged as one new generation and returns
	// its number. An empty batch commits nothing and returns the current
	// generation.
	Commit(ctx context.Context) (uint64, error)
}

// TrackedFile is the change tracker's record for one source path.
type TrackedFile struct {
	Hash     string
	ID       string
	Orphaned bool
}

// Hit is one matching document with its raw relevance score.
type Hit struct {
	models.Summary
	Score float64 `json:"score"`
}

// Result is the outcome of a search against a single generation.
type Result struct {
	Generation uint64
	Hits       []Hit
}

var (
	_ Store  = (*DB)(nil)
	_ Writer = (*Batch)(nil)
)
