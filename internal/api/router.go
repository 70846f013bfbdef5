package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/xq/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/search", h.Search)

	r.Get("/notes/{id}", h.GetNote)
	r.Post("/notes/{id}/select", h.SelectNote)

	// Maintenance.
	r.Post("/update", h.Update)
	r.Post("/gc", h.GC)

	return r
}
