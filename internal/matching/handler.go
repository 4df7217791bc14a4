// internal/matching/handler.go
package matching

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/httpx"
	"lostfound/internal/platform/pagination"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/recompute", h.handleRecompute)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/confirm", h.handleConfirm)
		r.Post("/{id}/dismiss", h.handleDismiss)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var f Filter
	if raw := q.Get("state"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.Error(w, apperr.InvalidArgument("matching.list", "unknown state %q", raw))
			return
		}
		f.Status = status
	}
	if f.Campus, err = httpx.Campus(q); err != nil {
		httpx.Error(w, err)
		return
	}

	result, err := h.service.List(r.Context(), f, page)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Confirm)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Dismiss)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID, actor string) error) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if err := apply(r.Context(), id, actor); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.Actor(r); err != nil {
		httpx.Error(w, err)
		return
	}
	n, err := h.service.RecomputeAll(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]int{"proposals": n})
}
