// Package food manages surplus-food listings: creation, edits, soft
// deletion and read-time filtering. All concurrent edits to a listing
// funnel through the store's version-checked conditional write.
package food

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

// StatusExpired is the derived read-time status for an active listing
// whose pickup window has passed. It is never persisted.
const StatusExpired = "expired"

// Quantity units accepted for a listing.
const (
	UnitServings = "servings"
	UnitKg       = "kg"
)

// EffectiveStatus returns the status of item as seen at time now.
func EffectiveStatus(item *store.FoodItem, now time.Time) string {
	if item.Status == store.FoodStatusActive && item.AvailableUntil <= now.Unix() {
		return StatusExpired
	}
	return item.Status
}

// ListingInput carries the caller-supplied fields of a listing.
type ListingInput struct {
	Title          string
	Items          []string
	QuantityValue  float64
	QuantityUnit   string
	PickupLat      float64
	PickupLng      float64
	PickupAddress  string
	AvailableUntil time.Time
}

func validateInput(in *ListingInput, now time.Time) error {
	if strings.TrimSpace(in.Title) == "" {
		return errs.Validation(errs.ReasonInvalidInput, "title is required")
	}
	if len(in.Items) == 0 {
		return errs.Validation(errs.ReasonInvalidInput, "items must contain at least one entry")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it) == "" {
			return errs.Validation(errs.ReasonInvalidInput, "items must not contain empty entries")
		}
	}
	if in.QuantityValue <= 0 {
		return errs.Validation(errs.ReasonInvalidInput, "quantity value must be positive")
	}
	if in.QuantityUnit != UnitServings && in.QuantityUnit != UnitKg {
		return errs.Validation(errs.ReasonInvalidInput, "quantity unit must be servings or kg")
	}
	if in.PickupLat < -90 || in.PickupLat > 90 {
		return errs.Validation(errs.ReasonInvalidInput, "latitude must be between -90 and 90")
	}
	if in.PickupLng < -180 || in.PickupLng > 180 {
		return errs.Validation(errs.ReasonInvalidInput, "longitude must be between -180 and 180")
	}
	if !in.AvailableUntil.After(now) {
		return errs.Validation(errs.ReasonInvalidInput, "available_until must be in the future")
	}
	return nil
}

// Service implements listing operations on top of the store.
type Service struct {
	foods    store.FoodStore
	requests store.RequestStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a listing service.
func NewService(foods store.FoodStore, requests store.RequestStore, logger *slog.Logger) *Service {
	return &Service{
		foods:    foods,
		requests: requests,
		logger:   logger,
		now:      time.Now,
	}
}

// Create validates the input and stores a new active listing at version 0.
func (s *Service) Create(ctx context.Context, ownerID string, in *ListingInput) (*store.FoodItem, error) {
	now := s.now()
	if err := validateInput(in, now); err != nil {
		return nil, err
	}

	item := &store.FoodItem{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(in.Title),
		Items:          in.Items,
		QuantityValue:  in.QuantityValue,
		QuantityUnit:   in.QuantityUnit,
		PickupLat:      in.PickupLat,
		PickupLng:      in.PickupLng,
		PickupAddress:  strings.TrimSpace(in.PickupAddress),
		AvailableUntil: in.AvailableUntil.Unix(),
		Status:         store.FoodStatusActive,
		Version:        0,
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
	}
	if err := s.foods.CreateFoodItem(ctx, item); err != nil {
		return nil, errs.Unavailable(err)
	}

	s.logger.Info("listing created", "food_id", item.ID, "owner_id", ownerID)
	return item, nil
}

// Get returns a listing by id. Deleted listings are not found for anyone
// but their owner.
func (s *Service) Get(ctx context.Context, viewerID, id string) (*store.FoodItem, error) {
	item, err := s.foods.GetFoodItem(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NotFound("listing not found")
		}
		return nil, errs.Unavailable(err)
	}
	if item.Status == store.FoodStatusDeleted && item.OwnerID != viewerID {
		return nil, errs.NotFound("listing not found")
	}
	return item, nil
}

// Update replaces the caller-editable fields of a listing. Only the owner
// may edit, only while the listing is still active, and the write is
// conditional on the version the caller last saw.
func (s *Service) Update(ctx context.Context, callerID, id string, in *ListingInput, expectedVersion int64) (*store.FoodItem, error) {
	now := s.now()
	if err := validateInput(in, now); err != nil {
		return nil, err
	}

	item, err := s.Get(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != callerID {
		return nil, errs.Authorization(errs.ReasonNotOwner, "only the owner may edit a listing")
	}
	if item.Status != store.FoodStatusActive {
		return nil, errs.Conflict(errs.ReasonItemClosed, "listing is no longer active")
	}

	next := *item
	next.Title = strings.TrimSpace(in.Title)
	next.Items = in.Items
	next.QuantityValue = in.QuantityValue
	next.QuantityUnit = in.QuantityUnit
	next.PickupLat = in.PickupLat
	next.PickupLng = in.PickupLng
	next.PickupAddress = strings.TrimSpace(in.PickupAddress)
	next.AvailableUntil = in.AvailableUntil.Unix()
	next.UpdatedAt = now.Unix()

	if err := s.foods.UpdateFoodItem(ctx, &next, expectedVersion); err != nil {
		return nil, s.casFailure(ctx, id, err)
	}
	return &next, nil
}

// Delete soft-deletes a listing. A listing with an accepted request
// represents a committed hand-off and cannot be deleted.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	item, err := s.Get(ctx, callerID, id)
	if err != nil {
		return err
	}
	if item.OwnerID != callerID {
		return errs.Authorization(errs.ReasonNotOwner, "only the owner may delete a listing")
	}
	if item.Status == store.FoodStatusDeleted {
		return nil // idempotent
	}

	reqs, err := s.requests.ListRequestsByFood(ctx, id)
	if err != nil {
		return errs.Unavailable(err)
	}
	for _, req := range reqs {
		if req.Status == store.RequestStatusAccepted {
			return errs.Conflict(errs.ReasonAcceptedRequestExists, "listing has an accepted request")
		}
	}

	next := *item
	next.Status = store.FoodStatusDeleted
	next.UpdatedAt = s.now().Unix()
	if err := s.foods.UpdateFoodItem(ctx, &next, item.Version); err != nil {
		return s.casFailure(ctx, id, err)
	}

	s.logger.Info("listing deleted", "food_id", id, "owner_id", callerID)
	return nil
}

// casFailure translates a conditional-write failure. A lost race is
// reported as item_closed when the listing meanwhile left the active
// state, otherwise as a plain version conflict; the caller re-reads and
// decides, the core never retries on its own.
func (s *Service) casFailure(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NotFound("listing not found")
	case errors.Is(err, store.ErrVersionConflict):
		current, readErr := s.foods.GetFoodItem(ctx, id)
		if readErr == nil && current.Status != store.FoodStatusActive {
			return errs.Conflict(errs.ReasonItemClosed, "listing is no longer active")
		}
		return errs.Conflict(errs.ReasonVersionConflict, "listing was modified concurrently")
	default:
		return errs.Unavailable(err)
	}
}

// List returns listings matching the filter, as seen by viewerID at the
// current time.
func (s *Service) List(ctx context.Context, viewerID string, f *Filter) ([]*store.FoodItem, error) {
	var (
		items []*store.FoodItem
		err   error
	)
	if f.Mine {
		items, err = s.foods.ListFoodItemsByOwner(ctx, viewerID)
	} else {
		items, err = s.foods.ListFoodItems(ctx)
	}
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	return f.Apply(items, s.now()), nil
}
