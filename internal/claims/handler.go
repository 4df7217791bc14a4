// internal/claims/handler.go
package claims

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lostfound/internal/apperr"
	"lostfound/internal/evidence"
	"lostfound/internal/platform/httpx"
	"lostfound/internal/platform/pagination"
)

type Handler struct {
	service  Service
	resolver Resolver
}

func NewHandler(service Service, resolver Resolver) *Handler {
	return &Handler{service: service, resolver: resolver}
}

// Routes mounts claim and dispute endpoints. submit wraps only claim
// submission, which is where rate limiting applies.
func (h *Handler) Routes(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.Route("/claims", func(r chi.Router) {
		r.With(submit...).Post("/", h.handleSubmit)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleDecide)
		r.Post("/{id}/request-info", h.handleRequestInfo)
		r.Post("/{id}/evidence", h.handleAddEvidence)
		r.Post("/{id}/return", h.handleReturn)
	})
	r.Route("/disputes/{foundItemId}", func(r chi.Router) {
		r.Post("/resolve", h.handleResolve)
		r.Post("/mark-conflicted", h.handleMarkConflicted)
	})
}

type submitRequest struct {
	FoundItemID uuid.UUID  `json:"foundItemId"`
	LostItemID  *uuid.UUID `json:"lostItemId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Images      []string   `json:"images"`
}

func (req submitRequest) evidence() []evidence.Submission {
	if req.Title == "" && req.Description == "" && len(req.Images) == 0 {
		return nil
	}
	return []evidence.Submission{{Title: req.Title, Description: req.Description, ImageRefs: req.Images}}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req submitRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	if req.FoundItemID == uuid.Nil {
		httpx.Error(w, apperr.InvalidArgument("claims.submit", "foundItemId is required"))
		return
	}

	claim, err := h.service.SubmitClaim(r.Context(), SubmitClaimRequest{
		FoundItemID: req.FoundItemID,
		LostItemID:  req.LostItemID,
		Claimant:    actor,
		Evidence:    req.evidence(),
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, claim)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	campus, err := httpx.Campus(q)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	f := Filter{Campus: campus, Claimant: q.Get("claimant")}
	if raw := q.Get("state"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.Error(w, apperr.InvalidArgument("claims.list", "unknown state %q", raw))
			return
		}
		f.Status = status
	}

	if f.Status == Conflicted {
		groups, err := h.resolver.ListConflicts(r.Context(), campus, page)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, groups)
		return
	}

	result, err := h.service.ListClaims(r.Context(), f, page)
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
	detail, err := h.service.GetClaim(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type decideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "id")
	if !ok {
		return
	}
	var req decideRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	decision, valid := ParseDecision(req.Status)
	if !valid {
		httpx.Error(w, apperr.InvalidArgument("claims.decide", "status must be approved or rejected"))
		return
	}

	claim, err := h.service.Decide(r.Context(), id, actor, decision, req.Reason)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, claim)
}

func (h *Handler) handleRequestInfo(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	if err := h.service.RequestMoreInfo(r.Context(), id, actor, req.Message); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "id")
	if !ok {
		return
	}
	var req evidence.Submission
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	added, err := h.service.AddEvidence(r.Context(), id, actor, []evidence.Submission{req})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, added)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "id")
	if !ok {
		return
	}
	claim, err := h.service.MarkReturned(r.Context(), id, actor)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, claim)
}

type resolveRequest struct {
	WinnerClaimID uuid.UUID `json:"winnerClaimId"`
	Reason        string    `json:"reason,omitempty"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	actor, foundItemID, ok := actorAndID(w, r, "foundItemId")
	if !ok {
		return
	}
	var req resolveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	if _, err := h.resolver.Resolve(r.Context(), foundItemID, req.WinnerClaimID, actor, req.Reason); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkConflicted(w http.ResponseWriter, r *http.Request) {
	actor, foundItemID, ok := actorAndID(w, r, "foundItemId")
	if !ok {
		return
	}
	if err := h.resolver.MarkConflicted(r.Context(), foundItemID, actor); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorAndID(w http.ResponseWriter, r *http.Request, param string) (string, uuid.UUID, bool) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.Error(w, err)
		return "", uuid.Nil, false
	}
	id, err := httpx.IDParam(r, param)
	if err != nil {
		httpx.Error(w, err)
		return "", uuid.Nil, false
	}
	return actor, id, true
}
