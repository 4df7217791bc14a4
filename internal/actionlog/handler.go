package actionlog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/httpx"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/action-log", h.handleStream)
}

type streamResponse struct {
	Items     []Entry `json:"items"`
	NextAfter int64   `json:"nextAfter"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := int64Param(q.Get("after"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	limit, err := int64Param(q.Get("limit"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	campus, err := httpx.Campus(q)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	entries, err := h.store.Stream(r.Context(), after, int(limit), campus)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].ID
	}
	httpx.JSON(w, http.StatusOK, streamResponse{Items: entries, NextAfter: next})
}

func int64Param(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.InvalidArgument("actionlog", "invalid cursor parameter %q", raw)
	}
	return v, nil
}
