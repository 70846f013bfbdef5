package api

import (
	"github.com/starford/xq/internal/models"
	"github.com/starford/xq/internal/ranking"
)

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Query   string           `json:"query" example:"tag:go \"error handling\"" validate:"required"`
	Results []ranking.Ranked `json:"results" validate:"required"`
}

// NoteDetail is the stored document returned by GET /notes/{id}.
type NoteDetail = models.Document

// SkippedFile reports a file the pass could not index.
type SkippedFile struct {
	Path  string `json:"path" validate:"required"`
	Error string `json:"error" validate:"required"`
}

// UpdateResponse summarizes an indexing pass.
type UpdateResponse struct {
	Scanned    int           `json:"scanned"`
	Unchanged  int           `json:"unchanged"`
	Indexed    int           `json:"indexed"`
	Orphaned   int           `json:"orphaned"`
	Skipped    []SkippedFile `json:"skipped"`
	Generation uint64        `json:"generation"`
}

// GCResponse summarizes a garbage-collection pass.
type GCResponse struct {
	Removed    int    `json:"removed"`
	Restored   int    `json:"restored"`
	Generation uint64 `json:"generation"`
}

// syntaxErrorResponse locates a malformed query.
type syntaxErrorResponse struct {
	Error  string `json:"error" validate:"required"`
	Token  string `json:"token"`
	Pos    int    `json:"pos"`
	Reason string `json:"reason"`
}
