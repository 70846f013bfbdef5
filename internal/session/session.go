// Package session implements the interactive query -> browse -> preview ->
// select loop as an explicit state machine. It owns no terminal: a front end
// feeds it events and renders its state.
//
// Queries run in the background. Every submission gets a sequence number
// and cancels the previous one; results are accepted only for the latest
// sequence, so a slow query can never overwrite a newer result set.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/query"
	"github.com/starford/xq/internal/ranking"
)

// State is a session lifecycle state.
type State int

const (
	Querying State = iota
	Browsing
	Previewing
	Selected
	Cancelled
)

func (s State) String() string {
	switch s {
	case Querying:
		return "querying"
	case Browsing:
		return "browsing"
	case Previewing:
		return "previewing"
	case Selected:
		return "selected"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Selected || s == Cancelled }

var (
	ErrTerminated = errors.New("session: already finished")
	ErrNoResult   = errors.New("session: no result under cursor")
)

// Searcher runs compiled queries and loads stored documents.
type Searcher interface {
	SearchQuery(ctx context.Context, q *query.Query) ([]ranking.Ranked, error)
	Get(ctx context.Context, id string) (*models.Document, error)
}

// Recorder persists a selection. It runs detached from the session.
type Recorder func(ctx context.Context, id string) error

// Request is one submitted query waiting to be executed.
type Request struct {
	Seq   uint64
	Query *query.Query
	Ctx   context.Context
}

// Controller is safe for concurrent use: query results are usually
// delivered from another goroutine than the one feeding input events.
type Controller struct {
	mu sync.Mutex

	state    State
	text     string
	query    *query.Query
	err      error
	results  []ranking.Ranked
	cursor   int
	preview  *Preview
	selected *ranking.Ranked

	seq    uint64
	cancel context.CancelFunc

	base     context.Context
	searcher Searcher
	recorder Recorder
	logger   *slog.Logger
	pending  sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder sets the function called once per confirmed selection.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithQuery pre-seeds the query text.
func WithQuery(text string) Option {
	return func(c *Controller) { c.text = text }
}

// New creates a controller in the Querying state. ctx bounds every query
// and selection commit started by the session.
func New(ctx context.Context, searcher Searcher, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{base: ctx, searcher: searcher, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Edit replaces the query text. Any displayed or in-flight result set is
// dropped and the session returns to Querying.
func (c *Controller) Edit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}
	c.text = text
	c.invalidate()
	c.err = nil
}

// Submit compiles the current text and returns the request to execute.
// A syntax error keeps the session in Querying and is also reported by Err.
func (c *Controller) Submit() (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil, ErrTerminated
	}
	c.invalidate()

	q, err := query.Compile(c.text)
	if err != nil {
		c.err = err
		c.query = nil
		return nil, err
	}
	c.err = nil
	c.query = q

	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	return &Request{Seq: c.seq, Query: q, Ctx: ctx}, nil
}

// Execute runs req against the searcher. It does not touch session state;
// pass its outcome to Deliver.
func (c *Controller) Execute(req *Request) ([]ranking.Ranked, error) {
	return c.searcher.SearchQuery(req.Ctx, req.Query)
}

// Deliver applies the outcome of request seq. Outcomes of superseded
// requests are discarded and Deliver reports false.
func (c *Controller) Deliver(seq uint64, results []ranking.Ranked, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() || seq != c.seq || c.query == nil || c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		c.err = err
		return true
	}
	c.results = results
	c.cursor = 0
	c.state = Browsing
	return true
}

// Run submits the current text and executes it synchronously.
func (c *Controller) Run() error {
	req, err := c.Submit()
	if err != nil {
		return err
	}
	results, err := c.Execute(req)
	c.Deliver(req.Seq, results, err)
	return err
}

// Next moves the cursor down, wrapping to the top.
func (c *Controller) Next() bool { return c.move(func(n, i int) int { return (i + 1) % n }) }

// Prev moves the cursor up, wrapping to the bottom.
func (c *Controller) Prev() bool { return c.move(func(n, i int) int { return (i - 1 + n) % n }) }

// Top moves the cursor to the first result.
func (c *Controller) Top() bool { return c.move(func(int, int) int { return 0 }) }

// Bottom moves the cursor to the last result.
func (c *Controller) Bottom() bool { return c.move(func(n, _ int) int { return n - 1 }) }

// move changes only the cursor. In Previewing the preview follows it.
func (c *Controller) move(to func(n, i int) int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.state != Browsing && c.state != Previewing) || len(c.results) == 0 {
		return false
	}
	c.cursor = to(len(c.results), c.cursor)
	if c.state == Previewing {
		c.preview = nil
	}
	return true
}

// OpenPreview loads the document under the cursor and computes where the
// query's terms occur in its body.
func (c *Controller) OpenPreview() (*Preview, error) {
	c.mu.Lock()
	if c.state != Browsing && c.state != Previewing {
		c.mu.Unlock()
		return nil, ErrNoResult
	}
	if len(c.results) == 0 {
		c.mu.Unlock()
		return nil, ErrNoResult
	}
	if c.state == Previewing && c.preview != nil {
		p := c.preview
		c.mu.Unlock()
		return p, nil
	}
	id := c.results[c.cursor].ID
	terms := c.query.Terms()
	seq, cursor := c.seq, c.cursor
	c.mu.Unlock()

	doc, err := c.searcher.Get(c.base, id)
	if err != nil {
		return nil, err
	}
	p := &Preview{Doc: doc, Highlights: Highlight(doc.Body, terms)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.cursor != cursor || (c.state != Browsing && c.state != Previewing) {
		return nil, ErrNoResult
	}
	c.preview = p
	c.state = Previewing
	return p, nil
}

// ClosePreview returns from Previewing to Browsing.
func (c *Controller) ClosePreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Previewing {
		c.state = Browsing
		c.preview = nil
	}
}

// Select confirms the result under the cursor and ends the session. The
// selection is recorded in the background; a recording failure is logged
// and never changes the outcome.
func (c *Controller) Select() (*ranking.Ranked, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil, ErrTerminated
	}
	if (c.state != Browsing && c.state != Previewing) || len(c.results) == 0 {
		return nil, ErrNoResult
	}
	chosen := c.results[c.cursor]
	c.selected = &chosen
	c.state = Selected
	c.stopInFlight()

	if c.recorder != nil {
		c.pending.Add(1)
		go func(id string) {
			defer c.pending.Done()
			if err := c.recorder(c.base, id); err != nil {
				c.logger.Warn("session: record selection failed", slog.String("id", id), slog.String("error", err.Error()))
			}
		}(chosen.ID)
	}
	return &chosen, nil
}

// Cancel aborts the session.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}
	c.state = Cancelled
	c.stopInFlight()
}

// WaitRecorded waits up to timeout for background selection commits and
// reports whether they all finished.
func (c *Controller) WaitRecorded(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// invalidate drops results and supersedes any in-flight request.
// Callers hold c.mu.
func (c *Controller) invalidate() {
	c.stopInFlight()
	c.seq++
	c.state = Querying
	c.results = nil
	c.cursor = 0
	c.preview = nil
}

func (c *Controller) stopInFlight() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
