// Package models defines the domain types for xq.
package models

import "time"

// Document is one indexed note.
type Document struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	ContentHash   string    `json:"content_hash"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Authors       []string  `json:"authors,omitempty"`
	Date          time.Time `json:"date,omitzero"`
	Tags          []string  `json:"tags,omitempty"`
	Body          string    `json:"body"`
	Text          string    `json:"-"`
	AccessCount   int64     `json:"access_count"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitzero"`
}

// HasDate reports whether the frontmatter carried a date.
func (d *Document) HasDate() bool { return !d.Date.IsZero() }

// Summary is the subset of stored fields returned with search hits.
type Summary struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Date        time.Time `json:"date,omitzero"`
	Tags        []string  `json:"tags,omitempty"`
	AccessCount int64     `json:"access_count"`
}
