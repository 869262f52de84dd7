package booking

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharemeal/sharemeal-go/internal/api"
	"github.com/sharemeal/sharemeal-go/internal/disclosure"
	"github.com/sharemeal/sharemeal-go/internal/identity"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

// Handler exposes request lifecycle operations over HTTP.
type Handler struct {
	mgr   *Manager
	users store.UserStore
}

// NewHandler creates a booking handler.
func NewHandler(mgr *Manager, users store.UserStore) *Handler {
	return &Handler{mgr: mgr, users: users}
}

// RequestView is the outward representation of a request. Counterparty
// holds the other side of the hand-off as the viewer may see them: the
// phone number appears only once the request is accepted.
type RequestView struct {
	ID             string              `json:"id"`
	FoodID         string              `json:"food_id"`
	RequesterID    string              `json:"requester_id"`
	OwnerID        string              `json:"owner_id"`
	Status         string              `json:"status"`
	Notes          string              `json:"notes,omitempty"`
	DecisionReason string              `json:"decision_reason,omitempty"`
	CreatedAt      string              `json:"created_at"`
	DecidedAt      string              `json:"decided_at,omitempty"`
	Counterparty   *disclosure.Contact `json:"counterparty,omitempty"`
}

func (h *Handler) viewOf(r *http.Request, viewerID string, req *store.FoodRequest) RequestView {
	v := RequestView{
		ID:             req.ID,
		FoodID:         req.FoodID,
		RequesterID:    req.RequesterID,
		OwnerID:        req.OwnerID,
		Status:         req.Status,
		Notes:          req.Notes,
		DecisionReason: req.DecisionReason,
		CreatedAt:      time.Unix(req.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
	if req.DecidedAt != 0 {
		v.DecidedAt = time.Unix(req.DecidedAt, 0).UTC().Format(time.RFC3339)
	}

	otherID := req.RequesterID
	if viewerID == req.RequesterID {
		otherID = req.OwnerID
	}
	if other, err := h.users.GetUser(r.Context(), otherID); err == nil {
		c := disclosure.ContactFor(viewerID, other, req)
		v.Counterparty = &c
	}
	return v
}

// CreateRequestBody is the request body for POST /food/{id}/request.
type CreateRequestBody struct {
	Notes string `json:"notes,omitempty"`
}

// Create handles POST /food/{id}/request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var body CreateRequestBody
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &body); err != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
			return
		}
	}

	req, err := h.mgr.Create(r.Context(), user.ID, chi.URLParam(r, "id"), body.Notes)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, h.viewOf(r, user.ID, req))
}

// List handles GET /requests, returning both sides of the caller's
// hand-offs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	reqs, err := h.mgr.ListForParty(r.Context(), user.ID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	views := make([]RequestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, h.viewOf(r, user.ID, req))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"requests": views})
}

// Get handles GET /requests/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	req, err := h.mgr.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.viewOf(r, user.ID, req))
}

// DecideBody is the request body for PATCH /requests/{id}.
type DecideBody struct {
	Action string `json:"action"` // accept, reject, cancel
	Reason string `json:"reason,omitempty"`
}

// Decide handles PATCH /requests/{id}.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var body DecideBody
	if err := api.DecodeJSON(r, &body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	var (
		req *store.FoodRequest
		err error
	)
	switch body.Action {
	case "accept":
		req, err = h.mgr.Accept(r.Context(), user.ID, id)
	case "reject":
		req, err = h.mgr.Reject(r.Context(), user.ID, id, body.Reason)
	case "cancel":
		req, err = h.mgr.Cancel(r.Context(), user.ID, id)
	default:
		api.WriteBadRequest(w, api.ReasonInvalidField, "action must be accept, reject or cancel")
		return
	}
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.viewOf(r, user.ID, req))
}

// Cancel handles DELETE /requests/{id} as an alias for the cancel action.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	if _, err := h.mgr.Cancel(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		api.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
