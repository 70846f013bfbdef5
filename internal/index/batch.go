package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/starford/xq/internal/analysis"
	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/models"
)

// Document fields with their own postings.
const (
	fieldTitle    = "title"
	fieldSubtitle = "subtitle"
	fieldTags     = "tags"
	fieldAuthor   = "author"
	fieldBody     = "body"
)

type trackRecord struct {
	hash string
	id   string
}

// Batch stages mutations in memory until Commit.
type Batch struct {
	db       *DB
	upserts  map[string]*models.Document
	removes  map[string]struct{}
	tracks   map[string]trackRecord
	untracks map[string]struct{}
	orphans  map[string]struct{}
	access   map[string]int64
}

// NewBatch returns an empty staging area bound to db.
func (db *DB) NewBatch() Writer {
	return &Batch{
		db:       db,
		upserts:  make(map[string]*models.Document),
		removes:  make(map[string]struct{}),
		tracks:   make(map[string]trackRecord),
		untracks: make(map[string]struct{}),
		orphans:  make(map[string]struct{}),
		access:   make(map[string]int64),
	}
}

// Upsert stages the insertion or replacement of doc. Replacing a document
// retracts all of its previous postings and facet memberships.
func (b *Batch) Upsert(doc *models.Document) {
	delete(b.removes, doc.ID)
	b.upserts[doc.ID] = doc
}

// Remove stages the retraction of a document and its usage counter.
func (b *Batch) Remove(id string) {
	delete(b.upserts, id)
	b.removes[id] = struct{}{}
}

// Track records the content hash last indexed for path.
func (b *Batch) Track(path, hash, id string) {
	delete(b.untracks, path)
	delete(b.orphans, path)
	b.tracks[path] = trackRecord{hash: hash, id: id}
}

// Untrack forgets path entirely.
func (b *Batch) Untrack(path string) {
	delete(b.tracks, path)
	delete(b.orphans, path)
	b.untracks[path] = struct{}{}
}

// MarkOrphaned flags a tracked path that was missing from the latest pass.
func (b *Batch) MarkOrphaned(path string) {
	if _, ok := b.tracks[path]; ok {
		return
	}
	b.orphans[path] = struct{}{}
}

// IncrementAccess stages one selection of id.
func (b *Batch) IncrementAccess(id string) {
	b.access[id]++
}

// Len returns the number of staged mutations.
func (b *Batch) Len() int {
	return len(b.upserts) + len(b.removes) + len(b.tracks) + len(b.untracks) + len(b.orphans) + len(b.access)
}

// Commit applies every staged mutation in one SQLite transaction together
// with the generation bump. Readers observe either none of it or all of it.
// On success the batch is emptied and can be reused.
func (b *Batch) Commit(ctx context.Context) (uint64, error) {
	if b.Len() == 0 {
		return b.db.Generation(ctx)
	}

	db := b.db
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	gen, err := b.apply(ctx, tx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, err
		}
		return 0, &apperr.CorruptionError{Op: "commit", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &apperr.CorruptionError{Op: "commit", Err: err}
	}

	b.reset()
	return gen, nil
}

func (b *Batch) apply(ctx context.Context, tx *sql.Tx) (uint64, error) {
	for _, id := range slices.Sorted(maps.Keys(b.removes)) {
		if err := retract(ctx, tx, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM usage WHERE doc_id = ?`, id); err != nil {
			return 0, err
		}
	}
	if err := b.db.stage("remove"); err != nil {
		return 0, err
	}

	for _, id := range slices.Sorted(maps.Keys(b.upserts)) {
		if err := b.writeDocument(ctx, tx, b.upserts[id]); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", id, err)
		}
		if err := b.db.stage("upsert"); err != nil {
			return 0, err
		}
	}

	for _, path := range slices.Sorted(maps.Keys(b.tracks)) {
		rec := b.tracks[path]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracked_files (path, content_hash, doc_id, orphaned) VALUES (?, ?, ?, 0)
			ON CONFLICT(path) DO UPDATE SET content_hash = excluded.content_hash, doc_id = excluded.doc_id, orphaned = 0`,
			path, rec.hash, rec.id); err != nil {
			return 0, err
		}
	}
	for _, path := range slices.Sorted(maps.Keys(b.untracks)) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_files WHERE path = ?`, path); err != nil {
			return 0, err
		}
	}
	for _, path := range slices.Sorted(maps.Keys(b.orphans)) {
		if _, err := tx.ExecContext(ctx, `UPDATE tracked_files SET orphaned = 1 WHERE path = ?`, path); err != nil {
			return 0, err
		}
	}
	if err := b.db.stage("track"); err != nil {
		return 0, err
	}

	for _, id := range slices.Sorted(maps.Keys(b.access)) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO usage (doc_id, access_count)
			SELECT ?, ? WHERE EXISTS (SELECT 1 FROM documents WHERE id = ?)
			ON CONFLICT(doc_id) DO UPDATE SET access_count = access_count + excluded.access_count`,
			id, b.access[id], id)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("index: increment access %s: %w", id, apperr.ErrNotFound)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value + 1 WHERE key = 'generation'`); err != nil {
		return 0, err
	}
	gen, err := generation(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := b.db.stage("generation"); err != nil {
		return 0, err
	}
	return gen, nil
}

func (b *Batch) writeDocument(ctx context.Context, tx *sql.Tx, doc *models.Document) error {
	if err := retract(ctx, tx, doc.ID); err != nil {
		return err
	}

	authors, err := json.Marshal(nonNil(doc.Authors))
	if err != nil {
		return err
	}
	tags, err := json.Marshal(nonNil(doc.Tags))
	if err != nil {
		return err
	}
	var date sql.NullInt64
	if doc.HasDate() {
		date = sql.NullInt64{Int64: doc.Date.Unix(), Valid: true}
	}
	indexedAt := doc.LastIndexedAt
	if indexedAt.IsZero() {
		indexedAt = b.db.now()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, path, content_hash, title, subtitle, authors, tags, date_unix, body, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, content_hash = excluded.content_hash, title = excluded.title,
			subtitle = excluded.subtitle, authors = excluded.authors, tags = excluded.tags,
			date_unix = excluded.date_unix, body = excluded.body, last_indexed_at = excluded.last_indexed_at`,
		doc.ID, doc.Path, doc.ContentHash, doc.Title, doc.Subtitle, string(authors), string(tags),
		date, doc.Body, indexedAt.UnixNano()); err != nil {
		return err
	}

	for _, tag := range doc.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO doc_tags (tag, doc_id) VALUES (?, ?)`, tag, doc.ID); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO postings (term, doc_id, field, tf, positions) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, field := range fieldsOf(doc) {
		for _, term := range slices.Sorted(maps.Keys(field.positions)) {
			pos := field.positions[term]
			encoded, err := json.Marshal(pos)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, term, doc.ID, field.name, len(pos), string(encoded)); err != nil {
				return err
			}
		}
	}
	return nil
}

// retract deletes everything derived from a document except its usage counter.
func retract(ctx context.Context, tx *sql.Tx, id string) error {
	for _, q := range []string{
		`DELETE FROM postings WHERE doc_id = ?`,
		`DELETE FROM doc_tags WHERE doc_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

type fieldTerms struct {
	name      string
	positions map[string][]int
}

// fieldsOf tokenizes every searchable field of doc. Multi-valued fields are
// joined with a newline so their positions stay in one sequence.
func fieldsOf(doc *models.Document) []fieldTerms {
	body := doc.Text
	if body == "" {
		body = doc.Body
	}
	src := []struct{ name, text string }{
		{fieldTitle, doc.Title},
		{fieldSubtitle, doc.Subtitle},
		{fieldTags, strings.Join(doc.Tags, "\n")},
		{fieldAuthor, strings.Join(doc.Authors, "\n")},
		{fieldBody, body},
	}
	out := make([]fieldTerms, 0, len(src))
	for _, s := range src {
		toks := analysis.Tokenize(s.text)
		if len(toks) == 0 {
			continue
		}
		ft := fieldTerms{name: s.name, positions: make(map[string][]int)}
		for _, tok := range toks {
			ft.positions[tok.Term] = append(ft.positions[tok.Term], tok.Pos)
		}
		out = append(out, ft)
	}
	return out
}

func (b *Batch) reset() {
	clear(b.upserts)
	clear(b.removes)
	clear(b.tracks)
	clear(b.untracks)
	clear(b.orphans)
	clear(b.access)
}

func (db *DB) stage(name string) error {
	if db.failAt == nil {
		return nil
	}
	return db.failAt(name)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
