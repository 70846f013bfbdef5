package session

import (
	"slices"

	"github.com/starford/xq/internal/analysis"
	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/query"
	"github.com/starford/xq/internal/ranking"
)

// Span is a byte range [Start, End) of a document body.
type Span struct {
	Start int
	End   int
}

// Preview is a stored document with the positions of matched terms.
type Preview struct {
	Doc        *models.Document
	Highlights []Span
}

// Highlight returns the spans of body whose normalized term is in terms,
// in order of appearance.
func Highlight(body string, terms []string) []Span {
	if len(terms) == 0 {
		return nil
	}
	var out []Span
	for _, tok := range analysis.Tokenize(body) {
		if slices.Contains(terms, tok.Term) {
			out = append(out, Span{Start: tok.Start, End: tok.End})
		}
	}
	return out
}

// Snapshot is a consistent copy of the controller state for rendering.
type Snapshot struct {
	State    State
	Text     string
	Query    *query.Query
	Err      error
	Results  []ranking.Ranked
	Cursor   int
	Preview  *Preview
	Selected *ranking.Ranked
	Seq      uint64
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:    c.state,
		Text:     c.text,
		Query:    c.query,
		Err:      c.err,
		Results:  c.results,
		Cursor:   c.cursor,
		Preview:  c.preview,
		Selected: c.selected,
		Seq:      c.seq,
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the result under the cursor, if any.
func (c *Controller) Current() (ranking.Ranked, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return ranking.Ranked{}, false
	}
	return c.results[c.cursor], true
}
