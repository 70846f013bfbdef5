package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/query"
)

var fieldBoost = map[string]float64{
	fieldTitle:    2,
	fieldSubtitle: 1.5,
	fieldTags:     1.5,
	fieldAuthor:   1,
	fieldBody:     1,
}

// summaryChunk bounds the number of host parameters in one IN (...) list.
const summaryChunk = 500

type posting struct {
	field     string
	tf        int
	positions []int
}

// termPostings maps a document id to the postings of one term in that document.
type termPostings map[string][]posting

type searcher struct {
	tx    *sql.Tx
	total int
	cache map[string]termPostings
}

// Search evaluates q against the current generation. Everything is read in
// one transaction, so a commit landing mid-search is not observed.
// Hits are ordered by id; ranking is the caller's concern.
func (db *DB) Search(ctx context.Context, q *query.Query) (*Result, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin search: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	gen, err := generation(ctx, tx)
	if err != nil {
		return nil, err
	}
	s := &searcher{tx: tx, cache: make(map[string]termPostings)}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&s.total); err != nil {
		return nil, fmt.Errorf("index: count documents: %w", err)
	}

	var candidates map[string]float64
	if len(q.Must) == 0 {
		ids, err := s.column(ctx, `SELECT id FROM documents`)
		if err != nil {
			return nil, err
		}
		candidates = make(map[string]float64, len(ids))
		for id := range ids {
			candidates[id] = 0
		}
	}
	for i, c := range q.Must {
		matched, err := s.match(ctx, c)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			candidates = matched
			continue
		}
		for id, score := range candidates {
			m, ok := matched[id]
			if !ok {
				delete(candidates, id)
				continue
			}
			candidates[id] = score + m
		}
	}

	for _, c := range q.MustNot {
		matched, err := s.match(ctx, c)
		if err != nil {
			return nil, err
		}
		for id := range matched {
			delete(candidates, id)
		}
	}
	for _, tag := range q.TagIn {
		ids, err := s.column(ctx, `SELECT doc_id FROM doc_tags WHERE tag = ?`, tag)
		if err != nil {
			return nil, err
		}
		for id := range candidates {
			if _, ok := ids[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	for _, tag := range q.TagOut {
		ids, err := s.column(ctx, `SELECT doc_id FROM doc_tags WHERE tag = ?`, tag)
		if err != nil {
			return nil, err
		}
		for id := range ids {
			delete(candidates, id)
		}
	}

	summaries, err := loadSummaries(ctx, tx, slices.Sorted(maps.Keys(candidates)))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(summaries))
	for _, sum := range summaries {
		if !passesFilters(sum, q) {
			continue
		}
		hits = append(hits, Hit{Summary: sum, Score: candidates[sum.ID]})
	}
	return &Result{Generation: gen, Hits: hits}, nil
}

// match returns the documents satisfying clause c with their score.
func (s *searcher) match(ctx context.Context, c query.Clause) (map[string]float64, error) {
	lists := make([]termPostings, len(c.Terms))
	for i, term := range c.Terms {
		l, err := s.postings(ctx, term)
		if err != nil {
			return nil, err
		}
		lists[i] = l
	}

	out := make(map[string]float64)
	if len(lists) == 0 {
		return out, nil
	}
	for id := range lists[0] {
		perTerm := make([][]posting, len(lists))
		found := true
		for i, l := range lists {
			perTerm[i] = inField(l[id], c.Field)
			if len(perTerm[i]) == 0 {
				found = false
				break
			}
		}
		if !found || (len(perTerm) > 1 && !contiguous(perTerm)) {
			continue
		}

		var score float64
		for i, ps := range perTerm {
			idf := math.Log(1 + float64(s.total)/float64(len(lists[i])))
			for _, p := range ps {
				score += fieldBoost[p.field] * (1 + math.Log(float64(p.tf))) * idf
			}
		}
		out[id] = score
	}
	return out, nil
}

func (s *searcher) postings(ctx context.Context, term string) (termPostings, error) {
	if l, ok := s.cache[term]; ok {
		return l, nil
	}
	rows, err := s.tx.QueryContext(ctx, `SELECT doc_id, field, tf, positions FROM postings WHERE term = ? ORDER BY doc_id, field`, term)
	if err != nil {
		return nil, fmt.Errorf("index: postings %q: %w", term, err)
	}
	defer rows.Close()

	l := make(termPostings)
	for rows.Next() {
		var (
			id, encoded string
			p           posting
		)
		if err := rows.Scan(&id, &p.field, &p.tf, &encoded); err != nil {
			return nil, fmt.Errorf("index: scan posting: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &p.positions); err != nil {
			return nil, fmt.Errorf("index: decode positions for %q: %w", term, err)
		}
		l[id] = append(l[id], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.cache[term] = l
	return l, nil
}

func (s *searcher) column(ctx context.Context, q string, args ...any) (map[string]struct{}, error) {
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func inField(ps []posting, field string) []posting {
	if field == "" {
		return ps
	}
	var out []posting
	for _, p := range ps {
		if p.field == field {
			out = append(out, p)
		}
	}
	return out
}

// contiguous reports whether the terms occur one after another in some field.
func contiguous(perTerm [][]posting) bool {
	at := make([]map[string]map[int]struct{}, len(perTerm))
	for i, ps := range perTerm {
		at[i] = make(map[string]map[int]struct{})
		for _, p := range ps {
			set := make(map[int]struct{}, len(p.positions))
			for _, pos := range p.positions {
				set[pos] = struct{}{}
			}
			at[i][p.field] = set
		}
	}
	for _, first := range perTerm[0] {
	start:
		for _, pos := range first.positions {
			for k := 1; k < len(perTerm); k++ {
				if _, ok := at[k][first.field][pos+k]; !ok {
					continue start
				}
			}
			return true
		}
	}
	return false
}

func passesFilters(sum models.Summary, q *query.Query) bool {
	if q.Since != nil || q.Until != nil {
		if sum.Date.IsZero() {
			return false
		}
		if q.Since != nil && sum.Date.Before(*q.Since) {
			return false
		}
		if q.Until != nil && sum.Date.After(*q.Until) {
			return false
		}
	}
	for _, want := range q.Authors {
		if !slices.ContainsFunc(sum.Authors, func(a string) bool {
			return strings.Contains(strings.ToLower(a), want)
		}) {
			return false
		}
	}
	return true
}
