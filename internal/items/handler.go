// internal/items/handler.go
package items

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

// Routes mounts the lost-item and found-item endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/lost-items", func(r chi.Router) {
		r.Post("/", h.handleCreateLost)
		r.Get("/", h.handleListLost)
		r.Get("/{id}", h.handleGetLost)
		r.Patch("/{id}", h.handleUpdateLost)
		r.Post("/{id}/close", h.handleCloseLost)
	})
	r.Route("/found-items", func(r chi.Router) {
		r.Post("/", h.handleCreateFound)
		r.Get("/", h.handleListFound)
		r.Get("/{id}", h.handleGetFound)
		r.Post("/{id}/store", h.handleStoreFound)
		r.Post("/{id}/close", h.handleCloseFound)
		r.Post("/{id}/reopen", h.handleReopenFound)
	})
}

func (h *Handler) handleCreateLost(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req NewLostItem
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	item, err := h.service.CreateLostItem(r.Context(), actor, req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListLost(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	q := r.URL.Query()
	f := LostFilter{Category: q.Get("category"), Owner: q.Get("owner")}
	if raw := q.Get("state"); raw != "" {
		status, ok := ParseLostStatus(raw)
		if !ok {
			httpx.Error(w, apperr.InvalidArgument("items.list_lost", "unknown state %q", raw))
			return
		}
		f.Status = status
	}
	if f.Campus, err = httpx.Campus(q); err != nil {
		httpx.Error(w, err)
		return
	}

	result, err := h.service.ListLostItems(r.Context(), f, page)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetLost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	item, err := h.service.GetLostItem(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleUpdateLost(w http.ResponseWriter, r *http.Request) {
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
	var patch LostItemPatch
	if err := httpx.Decode(r, &patch); err != nil {
		httpx.Error(w, err)
		return
	}

	item, err := h.service.UpdateLostItem(r.Context(), id, actor, patch)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCloseLost(w http.ResponseWriter, r *http.Request) {
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

	item, err := h.service.CloseLostItem(r.Context(), id, actor)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreateFound(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req NewFoundItem
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	item, err := h.service.CreateFoundItem(r.Context(), actor, req)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListFound(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	q := r.URL.Query()
	f := FoundFilter{Category: q.Get("category")}
	if raw := q.Get("state"); raw != "" {
		status, ok := ParseFoundStatus(raw)
		if !ok {
			httpx.Error(w, apperr.InvalidArgument("items.list_found", "unknown state %q", raw))
			return
		}
		f.Status = status
	}
	if f.Campus, err = httpx.Campus(q); err != nil {
		httpx.Error(w, err)
		return
	}

	result, err := h.service.ListFoundItems(r.Context(), f, page)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetFound(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, err)
		return
	}
	item, err := h.service.GetFoundItem(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type storageRequest struct {
	StorageLocation string `json:"storageLocation"`
}

func (h *Handler) handleStoreFound(w http.ResponseWriter, r *http.Request) {
	h.storageTransition(w, r, h.service.StoreFoundItem)
}

func (h *Handler) handleReopenFound(w http.ResponseWriter, r *http.Request) {
	h.storageTransition(w, r, h.service.ReopenFoundItem)
}

func (h *Handler) storageTransition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID, actor, storage string) (*FoundItem, error)) {
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
	var req storageRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, err)
			return
		}
	}

	item, err := apply(r.Context(), id, actor, req.StorageLocation)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCloseFound(w http.ResponseWriter, r *http.Request) {
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

	item, err := h.service.CloseFoundItem(r.Context(), id, actor)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}
