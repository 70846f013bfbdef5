// Package ranking orders search hits by text relevance plus a bounded boost
// earned from past selections.
package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/xq/internal/index"
)

// Weights parameterizes the usage boost
//
//	usage_weight(c) = Cap * c / (c + Scale)
//
// which is 0 for unused documents, strictly increasing in c and never
// reaches Cap. Scale is the access count that earns half of Cap.
type Weights struct {
	Cap   float64
	Scale float64
}

// DefaultWeights returns the weights used when nothing is configured.
func DefaultWeights() Weights {
	return Weights{Cap: 1, Scale: 5}
}

// UsageWeight returns the boost for a document selected count times.
func (w Weights) UsageWeight(count int64) float64 {
	if count <= 0 || w.Cap <= 0 || w.Scale <= 0 {
		return 0
	}
	c := float64(count)
	return w.Cap * c / (c + w.Scale)
}

// Relevance maps the store's raw text score onto the final scale.
func Relevance(raw float64) float64 {
	return raw
}

// Ranked is a hit with its final score.
type Ranked struct {
	index.Hit
	Usage float64 `json:"usage"`
	Final float64 `json:"final"`
}

// Rank scores hits and sorts them by final score descending, then title,
// then id. The order is total for a fixed index generation.
func (w Weights) Rank(hits []index.Hit) []Ranked {
	out := make([]Ranked, len(hits))
	for i, h := range hits {
		usage := w.UsageWeight(h.AccessCount)
		out[i] = Ranked{Hit: h, Usage: usage, Final: Relevance(h.Score) + usage}
	}
	slices.SortFunc(out, Compare)
	return out
}

// Compare orders a before b when a ranks higher.
func Compare(a, b Ranked) int {
	if c := cmp.Compare(b.Final, a.Final); c != 0 {
		return c
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// RecordSelection commits one access_count increment for id in a batch of
// its own, independent of any indexing pass.
func RecordSelection(ctx context.Context, store index.Store, id string) error {
	b := store.NewBatch()
	b.IncrementAccess(id)
	if _, err := b.Commit(ctx); err != nil {
		return fmt.Errorf("ranking: record selection of %s: %w", id, err)
	}
	return nil
}
