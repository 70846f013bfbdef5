package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/models"
)

// GetStored returns the stored fields of one document for preview.
func (db *DB) GetStored(ctx context.Context, id string) (*models.Document, error) {
	var (
		doc            models.Document
		authors, tags  string
		date           sql.NullInt64
		indexedAtNanos int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT d.id, d.path, d.content_hash, d.title, d.subtitle, d.authors, d.tags, d.date_unix,
		       d.body, d.last_indexed_at, COALESCE(u.access_count, 0)
		FROM documents d LEFT JOIN usage u ON u.doc_id = d.id
		WHERE d.id = ?`, id).Scan(
		&doc.ID, &doc.Path, &doc.ContentHash, &doc.Title, &doc.Subtitle, &authors, &tags, &date,
		&doc.Body, &indexedAtNanos, &doc.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", id, err)
	}
	if err := decodeLists(authors, tags, &doc.Authors, &doc.Tags); err != nil {
		return nil, err
	}
	if date.Valid {
		doc.Date = time.Unix(date.Int64, 0).UTC()
	}
	doc.LastIndexedAt = time.Unix(0, indexedAtNanos).UTC()
	return &doc, nil
}

// Generation returns the number of the last committed generation.
func (db *DB) Generation(ctx context.Context) (uint64, error) {
	return generation(ctx, db.conn)
}

// Tracked returns the change tracker's path -> hash records.
func (db *DB) Tracked(ctx context.Context) (map[string]TrackedFile, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, content_hash, doc_id, orphaned FROM tracked_files`)
	if err != nil {
		return nil, fmt.Errorf("index: tracked files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]TrackedFile)
	for rows.Next() {
		var (
			path string
			tf   TrackedFile
		)
		if err := rows.Scan(&path, &tf.Hash, &tf.ID, &tf.Orphaned); err != nil {
			return nil, fmt.Errorf("index: scan tracked file: %w", err)
		}
		out[path] = tf
	}
	return out, rows.Err()
}

func loadSummaries(ctx context.Context, q querier, ids []string) ([]models.Summary, error) {
	out := make([]models.Summary, 0, len(ids))
	for start := 0; start < len(ids); start += summaryChunk {
		chunk := ids[start:min(start+summaryChunk, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := q.QueryContext(ctx, `
			SELECT d.id, d.path, d.title, d.subtitle, d.authors, d.tags, d.date_unix, COALESCE(u.access_count, 0)
			FROM documents d LEFT JOIN usage u ON u.doc_id = d.id
			WHERE d.id IN (`+strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")+`)
			ORDER BY d.id`, args...)
		if err != nil {
			return nil, fmt.Errorf("index: load summaries: %w", err)
		}
		for rows.Next() {
			var (
				s             models.Summary
				authors, tags string
				date          sql.NullInt64
			)
			if err := rows.Scan(&s.ID, &s.Path, &s.Title, &s.Subtitle, &authors, &tags, &date, &s.AccessCount); err != nil {
				rows.Close()
				return nil, fmt.Errorf("index: scan summary: %w", err)
			}
			if err := decodeLists(authors, tags, &s.Authors, &s.Tags); err != nil {
				rows.Close()
				return nil, err
			}
			if date.Valid {
				s.Date = time.Unix(date.Int64, 0).UTC()
			}
			out = append(out, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeLists(authors, tags string, outAuthors, outTags *[]string) error {
	if err := json.Unmarshal([]byte(authors), outAuthors); err != nil {
		return fmt.Errorf("index: decode authors: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), outTags); err != nil {
		return fmt.Errorf("index: decode tags: %w", err)
	}
	return nil
}
