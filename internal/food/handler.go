package food

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharemeal/sharemeal-go/internal/api"
	"github.com/sharemeal/sharemeal-go/internal/disclosure"
	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/identity"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

func badQueryParam(message string) error {
	return errs.Validation(errs.ReasonInvalidInput, message)
}

// Handler exposes listing operations over HTTP.
type Handler struct {
	svc   *Service
	gate  *disclosure.Gate
	users store.UserStore
}

// NewHandler creates a listing handler. The gate decides whether the
// owner's phone appears on the listing detail view.
func NewHandler(svc *Service, gate *disclosure.Gate, users store.UserStore) *Handler {
	return &Handler{svc: svc, gate: gate, users: users}
}

// ListingView is the outward representation of a listing. Status is the
// effective status at response time.
type ListingView struct {
	ID             string   `json:"id"`
	OwnerID        string   `json:"owner_id"`
	Title          string   `json:"title"`
	Items          []string `json:"items"`
	QuantityValue  float64  `json:"quantity_value"`
	QuantityUnit   string   `json:"quantity_unit"`
	PickupLat      float64  `json:"pickup_lat"`
	PickupLng      float64  `json:"pickup_lng"`
	PickupAddress  string   `json:"pickup_address"`
	AvailableUntil string   `json:"available_until"`
	Status         string   `json:"status"`
	Version        int64    `json:"version"`
	CreatedAt      string   `json:"created_at"`
	DistanceKm     *float64 `json:"distance_km,omitempty"`

	// Owner is only populated on the detail view. Phone is withheld
	// until an accepted request pairs the viewer with the owner.
	Owner *disclosure.Contact `json:"owner,omitempty"`
}

func viewOf(item *store.FoodItem, now time.Time) ListingView {
	return ListingView{
		ID:             item.ID,
		OwnerID:        item.OwnerID,
		Title:          item.Title,
		Items:          item.Items,
		QuantityValue:  item.QuantityValue,
		QuantityUnit:   item.QuantityUnit,
		PickupLat:      item.PickupLat,
		PickupLng:      item.PickupLng,
		PickupAddress:  item.PickupAddress,
		AvailableUntil: time.Unix(item.AvailableUntil, 0).UTC().Format(time.RFC3339),
		Status:         EffectiveStatus(item, now),
		Version:        item.Version,
		CreatedAt:      time.Unix(item.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}

// ListingRequest is the request body for creating or updating a listing.
// Version is required on update and ignored on create.
type ListingRequest struct {
	Title          string    `json:"title"`
	Items          []string  `json:"items"`
	QuantityValue  float64   `json:"quantity_value"`
	QuantityUnit   string    `json:"quantity_unit"`
	PickupLat      float64   `json:"pickup_lat"`
	PickupLng      float64   `json:"pickup_lng"`
	PickupAddress  string    `json:"pickup_address"`
	AvailableUntil time.Time `json:"available_until"`
	Version        *int64    `json:"version,omitempty"`
}

func (r *ListingRequest) input() *ListingInput {
	return &ListingInput{
		Title:          r.Title,
		Items:          r.Items,
		QuantityValue:  r.QuantityValue,
		QuantityUnit:   r.QuantityUnit,
		PickupLat:      r.PickupLat,
		PickupLng:      r.PickupLng,
		PickupAddress:  r.PickupAddress,
		AvailableUntil: r.AvailableUntil,
	}
}

// Create handles POST /food.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req ListingRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	item, err := h.svc.Create(r.Context(), user.ID, req.input())
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, viewOf(item, time.Now()))
}

// Get handles GET /food/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	item, err := h.svc.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	v := viewOf(item, time.Now())
	v.Owner = h.ownerContact(r.Context(), user.ID, item)
	api.WriteJSON(w, http.StatusOK, v)
}

// ownerContact builds the owner's contact view for the caller. The
// phone fails closed: it is withheld on any gate error.
func (h *Handler) ownerContact(ctx context.Context, viewerID string, item *store.FoodItem) *disclosure.Contact {
	owner, err := h.users.GetUser(ctx, item.OwnerID)
	if err != nil {
		return nil
	}
	c := disclosure.Contact{DisplayName: owner.DisplayName}
	if allowed, err := h.gate.Allowed(ctx, viewerID, item.OwnerID); err == nil && allowed {
		c.Phone = owner.Phone
	}
	return &c
}

// Update handles PATCH /food/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req ListingRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Version == nil {
		api.WriteBadRequest(w, api.ReasonMissingField, "version is required for updates")
		return
	}

	item, err := h.svc.Update(r.Context(), user.ID, chi.URLParam(r, "id"), req.input(), *req.Version)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(item, time.Now()))
}

// Delete handles DELETE /food/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	if err := h.svc.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		api.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /food. Supported query parameters: lat, lng, radius_km,
// title, location, item, mine.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	f, err := filterFromQuery(r)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	items, err := h.svc.List(r.Context(), user.ID, f)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	now := time.Now()
	views := make([]ListingView, 0, len(items))
	for _, item := range items {
		v := viewOf(item, now)
		if f.hasCenter() {
			d := Haversine(*f.Lat, *f.Lng, item.PickupLat, item.PickupLng)
			v.DistanceKm = &d
		}
		views = append(views, v)
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": views})
}

func filterFromQuery(r *http.Request) (*Filter, error) {
	q := r.URL.Query()
	f := &Filter{
		Title:    q.Get("title"),
		Location: q.Get("location"),
		Item:     q.Get("item"),
		Mine:     q.Get("mine") == "true",
	}

	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if (latStr == "") != (lngStr == "") {
		return nil, badQueryParam("lat and lng must be provided together")
	}
	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, badQueryParam("lat must be a number between -90 and 90")
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, badQueryParam("lng must be a number between -180 and 180")
		}
		f.Lat, f.Lng = &lat, &lng
	}

	if radStr := q.Get("radius_km"); radStr != "" {
		rad, err := strconv.ParseFloat(radStr, 64)
		if err != nil || rad <= 0 {
			return nil, badQueryParam("radius_km must be a positive number")
		}
		if f.Lat == nil {
			return nil, badQueryParam("radius_km requires lat and lng")
		}
		f.RadiusKm = rad
	}
	return f, nil
}
