package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/noteservice"
	"github.com/starford/xq/internal/query"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search over indexed notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Query; empty lists every note"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	syntaxErrorResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	q, err := query.Compile(raw)
	if err != nil {
		var qe *apperr.QuerySyntaxError
		if errors.As(err, &qe) {
			writeJSON(w, http.StatusBadRequest, syntaxErrorResponse{
				Error:  "invalid query",
				Token:  qe.Token,
				Pos:    qe.Pos,
				Reason: qe.Reason,
			})
			return
		}
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}

	results, err := h.svc.SearchQuery(r.Context(), q)
	if err != nil {
		internalError(w, "search", err, slog.String("query", raw))
		return
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q.String(), Results: results})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get the stored fields of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			internalError(w, "get note", err, slog.String("id", id))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// SelectNote handles POST /api/notes/{id}/select.
//
//	@Summary		Record that a note was chosen
//	@Tags			notes
//	@Param			id	path	string	true	"Document id"
//	@Success		204	"Selection recorded"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/select [post]
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Select(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			internalError(w, "select note", err, slog.String("id", id))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Update handles POST /api/update. The pass always covers the configured
// source glob; callers cannot point it at other files.
//
//	@Summary		Run an incremental indexing pass
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	UpdateResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/update [post]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Update(r.Context(), "")
	if err != nil {
		h.maintenanceError(w, "update", err)
		return
	}
	resp := UpdateResponse{
		Scanned:    sum.Scanned,
		Unchanged:  sum.Unchanged,
		Indexed:    sum.Indexed,
		Orphaned:   sum.Orphaned,
		Skipped:    make([]SkippedFile, 0, len(sum.Skipped)),
		Generation: sum.Generation,
	}
	for _, s := range sum.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedFile{Path: s.Path, Error: s.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GC handles POST /api/gc.
//
//	@Summary		Remove documents whose files are gone
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	GCResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/gc [post]
func (h *Handler) GC(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.GC(r.Context())
	if err != nil {
		h.maintenanceError(w, "gc", err)
		return
	}
	writeJSON(w, http.StatusOK, GCResponse{Removed: sum.Removed, Restored: sum.Restored, Generation: sum.Generation})
}

func (h *Handler) maintenanceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrIndexBusy):
		writeError(w, http.StatusConflict, "index is busy")
	case errors.Is(err, noteservice.ErrNoIndexer):
		writeError(w, http.StatusNotImplemented, "indexing is not enabled")
	default:
		internalError(w, op, err)
	}
}
