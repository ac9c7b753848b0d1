package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/denote-reconcile/internal/denote"
	"github.com/starford/denote-reconcile/internal/journal"
	"github.com/starford/denote-reconcile/internal/passservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *passservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *passservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Run a reconciliation pass over the corpus
//	@Tags			passes
//	@Produce		json
//	@Param			dry_run	query		bool	false	"Compute the report without writing"
//	@Success		200		{object}	PassResult
//	@Failure		409		{object}	errResponse
//	@Failure		500		{object}	PassResult
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	res, err := h.svc.TryReconcile(r.Context(), dryRun)
	if err != nil {
		if res.Report == nil {
			writeServiceError(w, "reconcile", err)
			return
		}
		// The report explains how far the pass got.
		slog.Error("reconcile failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPasses handles GET /api/passes.
//
//	@Summary		List recorded passes, newest first
//	@Tags			passes
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	PassListResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/passes [get]
func (h *Handler) ListPasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	passes, total, err := h.svc.ListPasses(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, "list passes", err)
		return
	}
	if passes == nil {
		passes = []journal.PassSummary{}
	}
	writeJSON(w, http.StatusOK, PassListResponse{Passes: passes, Total: total})
}

// GetPass handles GET /api/passes/{id}.
//
//	@Summary		Get one recorded pass with its line items
//	@Tags			passes
//	@Produce		json
//	@Param			id	path		int	true	"Pass id"
//	@Success		200	{object}	PassDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/passes/{id} [get]
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid pass id"))
		return
	}
	pass, err := h.svc.GetPass(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get pass", err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

// SearchItems handles GET /api/items?q= and GET /api/items?note=.
//
//	@Summary		Search recorded line items by text or by note
//	@Tags			passes
//	@Produce		json
//	@Param			q		query		string	false	"Full-text query"
//	@Param			note	query		string	false	"Exact note filename"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) SearchItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	query := strings.TrimSpace(q.Get("q"))
	note := q.Get("note")

	var (
		items []journal.ItemHit
		err   error
	)
	switch {
	case note != "":
		items, err = h.svc.NoteHistory(r.Context(), note, limit)
	case query != "":
		items, err = h.svc.Search(r.Context(), query, limit)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("q or note is required"))
		return
	}
	if err != nil {
		writeServiceError(w, "search items", err)
		return
	}
	if items == nil {
		items = []journal.ItemHit{}
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items})
}

// ParseFilename handles GET /api/filenames/{name}.
//
//	@Summary		Decode a Denote filename
//	@Tags			filenames
//	@Produce		json
//	@Param			name	path		string	true	"Filename"
//	@Success		200		{object}	FilenameResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/filenames/{name} [get]
func (h *Handler) ParseFilename(w http.ResponseWriter, r *http.Request) {
	fn, err := denote.ParseFilename(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}
	typ := fn.Type()
	if typ == denote.TypeOther {
		typ = "other"
	}
	writeJSON(w, http.StatusOK, FilenameResponse{
		Identifier: fn.ID.String(),
		Slug:       fn.Slug,
		Tags:       fn.Tags,
		Type:       typ,
		Canonical:  fn.String(),
	})
}
