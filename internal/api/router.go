package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/denote-reconcile/internal/passservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *passservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/reconcile", h.Reconcile)

	// Pass journal.
	r.Get("/passes", h.ListPasses)
	r.Get("/passes/{id}", h.GetPass)
	r.Get("/items", h.SearchItems)

	r.Get("/filenames/{name}", h.ParseFilename)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
