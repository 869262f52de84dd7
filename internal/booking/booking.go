// Package booking manages the lifecycle of food requests: creation,
// acceptance, rejection and cancellation. Acceptance is the only
// transition that races across clients; it is serialized through the
// listing's version-checked write so at most one request ever wins.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/events"
	"github.com/sharemeal/sharemeal-go/internal/food"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

// Decision reasons recorded on terminal requests.
const (
	DecisionOwnerRejected      = "owner_rejected"
	DecisionRequesterCancelled = "requester_cancelled"
	DecisionItemClosed         = "item_closed"
)

// Manager implements request lifecycle operations.
type Manager struct {
	foods    store.FoodStore
	requests store.RequestStore
	emitter  events.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a request lifecycle manager.
func NewManager(foods store.FoodStore, requests store.RequestStore, emitter events.Emitter, logger *slog.Logger) *Manager {
	return &Manager{
		foods:    foods,
		requests: requests,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
	}
}

// Create files a pending request against a listing.
func (m *Manager) Create(ctx context.Context, requesterID, foodID, notes string) (*store.FoodRequest, error) {
	item, err := m.foods.GetFoodItem(ctx, foodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound("listing not found")
		}
		return nil, errs.Unavailable(err)
	}

	if item.OwnerID == requesterID {
		return nil, errs.Validation(errs.ReasonOwnListing, "cannot request your own listing")
	}
	switch item.Status {
	case store.FoodStatusClosed, store.FoodStatusDeleted:
		return nil, errs.Conflict(errs.ReasonItemClosed, "listing is no longer available")
	}
	now := m.now()
	if food.EffectiveStatus(item, now) == food.StatusExpired {
		return nil, errs.Validation(errs.ReasonListingExpired, "listing pickup window has passed")
	}

	existing, err := m.requests.ListRequestsByFood(ctx, foodID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	for _, req := range existing {
		if req.RequesterID == requesterID && req.Status == store.RequestStatusPending {
			return nil, errs.Conflict(errs.ReasonDuplicateRequest, "a pending request for this listing already exists")
		}
	}

	req := &store.FoodRequest{
		ID:          uuid.NewString(),
		FoodID:      foodID,
		RequesterID: requesterID,
		OwnerID:     item.OwnerID,
		Status:      store.RequestStatusPending,
		Notes:       strings.TrimSpace(notes),
		CreatedAt:   now.Unix(),
	}
	if err := m.requests.CreateRequest(ctx, req); err != nil {
		return nil, errs.Unavailable(err)
	}

	m.logger.Info("request created", "request_id", req.ID, "food_id", foodID, "requester_id", requesterID)
	m.emitter.Emit(events.Event{
		Type:        events.TypeRequestCreated,
		RequestID:   req.ID,
		FoodID:      foodID,
		RecipientID: item.OwnerID,
		ActorID:     requesterID,
		OccurredAt:  now,
	})
	return req, nil
}

// Get returns a request visible to the caller. Only the two parties of a
// request may read it.
func (m *Manager) Get(ctx context.Context, callerID, id string) (*store.FoodRequest, error) {
	req, err := m.requests.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound("request not found")
		}
		return nil, errs.Unavailable(err)
	}
	if req.RequesterID != callerID && req.OwnerID != callerID {
		return nil, errs.NotFound("request not found")
	}
	return req, nil
}

// ListForParty returns all requests where the caller is requester or owner.
func (m *Manager) ListForParty(ctx context.Context, callerID string) ([]*store.FoodRequest, error) {
	reqs, err := m.requests.ListRequestsByParty(ctx, callerID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	return reqs, nil
}

// Accept closes the listing and marks the request accepted. The listing
// write is conditional on the version the owner read; a lost race means
// another acceptance (or edit) got there first and nothing is changed.
// All other pending requests on the listing are rejected afterwards.
func (m *Manager) Accept(ctx context.Context, callerID, requestID string) (*store.FoodRequest, error) {
	req, err := m.Get(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != callerID {
		return nil, errs.Authorization(errs.ReasonNotOwner, "only the listing owner may accept a request")
	}
	if req.Status != store.RequestStatusPending {
		return nil, errs.Conflict(errs.ReasonAlreadyDecided, "request is already decided")
	}

	item, err := m.foods.GetFoodItem(ctx, req.FoodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound("listing not found")
		}
		return nil, errs.Unavailable(err)
	}
	now := m.now()
	if item.Status != store.FoodStatusActive {
		return nil, errs.Conflict(errs.ReasonItemClosed, "listing is no longer active")
	}
	if food.EffectiveStatus(item, now) == food.StatusExpired {
		return nil, errs.Conflict(errs.ReasonListingExpired, "listing pickup window has passed")
	}

	closed := *item
	closed.Status = store.FoodStatusClosed
	closed.UpdatedAt = now.Unix()
	if err := m.foods.UpdateFoodItem(ctx, &closed, item.Version); err != nil {
		return nil, m.acceptRaceLost(ctx, req.FoodID, err)
	}

	req.Status = store.RequestStatusAccepted
	req.DecidedAt = now.Unix()
	if err := m.requests.DecideRequest(ctx, req); err != nil {
		// The request left pending between the listing close and this
		// write: a concurrent reject or cancel won the request row. The
		// acceptance is void, so the listing is reopened before the
		// conflict surfaces. The reopen CAS uses the version this call
		// just wrote, which no other accepter can hold.
		reopen := closed
		reopen.Status = store.FoodStatusActive
		if rerr := m.foods.UpdateFoodItem(ctx, &reopen, closed.Version); rerr != nil {
			m.logger.Error("reopening listing after lost request decision failed",
				"food_id", closed.ID, "error", rerr)
		}
		return nil, decideFailed(err)
	}

	m.logger.Info("request accepted", "request_id", req.ID, "food_id", req.FoodID)
	m.emitter.Emit(events.Event{
		Type:        events.TypeRequestAccepted,
		RequestID:   req.ID,
		FoodID:      req.FoodID,
		RecipientID: req.RequesterID,
		ActorID:     callerID,
		OccurredAt:  now,
	})

	m.rejectRemaining(ctx, req, now)
	return req, nil
}

// rejectRemaining rejects every other pending request on the listing.
// Failures are logged, not surfaced: the acceptance already committed.
func (m *Manager) rejectRemaining(ctx context.Context, winner *store.FoodRequest, now time.Time) {
	others, err := m.requests.ListRequestsByFood(ctx, winner.FoodID)
	if err != nil {
		m.logger.Error("listing pending requests for cascade reject failed",
			"food_id", winner.FoodID, "error", err)
		return
	}
	for _, other := range others {
		if other.ID == winner.ID || other.Status != store.RequestStatusPending {
			continue
		}
		other.Status = store.RequestStatusRejected
		other.DecisionReason = DecisionItemClosed
		other.DecidedAt = now.Unix()
		if err := m.requests.DecideRequest(ctx, other); err != nil {
			// A concurrent cancel may win the row; that outcome is as
			// terminal as ours, so only real failures are worth noise.
			if !errors.Is(err, store.ErrVersionConflict) {
				m.logger.Error("cascade reject failed", "request_id", other.ID, "error", err)
			}
			continue
		}
		m.emitter.Emit(events.Event{
			Type:        events.TypeRequestRejected,
			RequestID:   other.ID,
			FoodID:      other.FoodID,
			RecipientID: other.RequesterID,
			ActorID:     winner.OwnerID,
			Reason:      DecisionItemClosed,
			OccurredAt:  now,
		})
	}
}

// acceptRaceLost classifies a lost conditional write during acceptance.
func (m *Manager) acceptRaceLost(ctx context.Context, foodID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NotFound("listing not found")
	case errors.Is(err, store.ErrVersionConflict):
		current, readErr := m.foods.GetFoodItem(ctx, foodID)
		if readErr == nil && current.Status != store.FoodStatusActive {
			return errs.Conflict(errs.ReasonItemClosed, "listing is no longer active")
		}
		return errs.Conflict(errs.ReasonVersionConflict, "listing was modified concurrently")
	default:
		return errs.Unavailable(err)
	}
}

// decideFailed translates a lost conditional write on a request row.
func decideFailed(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NotFound("request not found")
	case errors.Is(err, store.ErrVersionConflict):
		return errs.Conflict(errs.ReasonAlreadyDecided, "request is already decided")
	default:
		return errs.Unavailable(err)
	}
}

// Reject marks a pending request rejected. Terminal requests never move
// again, so a repeated reject fails with already_decided.
func (m *Manager) Reject(ctx context.Context, callerID, requestID, reason string) (*store.FoodRequest, error) {
	req, err := m.Get(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != callerID {
		return nil, errs.Authorization(errs.ReasonNotOwner, "only the listing owner may reject a request")
	}
	if req.Status != store.RequestStatusPending {
		return nil, errs.Conflict(errs.ReasonAlreadyDecided, "request is already decided")
	}

	if reason == "" {
		reason = DecisionOwnerRejected
	}
	now := m.now()
	req.Status = store.RequestStatusRejected
	req.DecisionReason = reason
	req.DecidedAt = now.Unix()
	if err := m.requests.DecideRequest(ctx, req); err != nil {
		return nil, decideFailed(err)
	}

	m.logger.Info("request rejected", "request_id", req.ID, "reason", reason)
	m.emitter.Emit(events.Event{
		Type:        events.TypeRequestRejected,
		RequestID:   req.ID,
		FoodID:      req.FoodID,
		RecipientID: req.RequesterID,
		ActorID:     callerID,
		Reason:      reason,
		OccurredAt:  now,
	})
	return req, nil
}

// Cancel withdraws a pending request. Only the requester may cancel, and
// only while the request is still pending.
func (m *Manager) Cancel(ctx context.Context, callerID, requestID string) (*store.FoodRequest, error) {
	req, err := m.Get(ctx, callerID, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID {
		return nil, errs.Authorization(errs.ReasonNotRequester, "only the requester may cancel a request")
	}
	if req.Status != store.RequestStatusPending {
		return nil, errs.Conflict(errs.ReasonAlreadyDecided, "request is already decided")
	}

	now := m.now()
	req.Status = store.RequestStatusCancelled
	req.DecisionReason = DecisionRequesterCancelled
	req.DecidedAt = now.Unix()
	if err := m.requests.DecideRequest(ctx, req); err != nil {
		return nil, decideFailed(err)
	}

	m.logger.Info("request cancelled", "request_id", req.ID)
	m.emitter.Emit(events.Event{
		Type:        events.TypeRequestCancelled,
		RequestID:   req.ID,
		FoodID:      req.FoodID,
		RecipientID: req.OwnerID,
		ActorID:     callerID,
		Reason:      DecisionRequesterCancelled,
		OccurredAt:  now,
	})
	return req, nil
}
