// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
	ErrClosed          = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite, memory).
	Name() string
}

// UserStore defines operations on the users collection.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrAlreadyExists when the
	// email is already registered.
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
}

// FoodStore defines operations on the food_items collection.
type FoodStore interface {
	CreateFoodItem(ctx context.Context, item *FoodItem) error
	GetFoodItem(ctx context.Context, id string) (*FoodItem, error)

	// UpdateFoodItem is the single atomic conditional-write primitive.
	// It persists item with Version = expectedVersion+1 only if the stored
	// row still carries expectedVersion. Returns ErrVersionConflict when
	// another writer got there first, ErrNotFound for an unknown id.
	// All cross-client races on a listing are resolved through this call.
	UpdateFoodItem(ctx context.Context, item *FoodItem, expectedVersion int64) error

	ListFoodItems(ctx context.Context) ([]*FoodItem, error)
	ListFoodItemsByOwner(ctx context.Context, ownerID string) ([]*FoodItem, error)
}

// RequestStore defines operations on the requests collection.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *FoodRequest) error
	GetRequest(ctx context.Context, id string) (*FoodRequest, error)

	// DecideRequest persists the terminal transition carried by req, but
	// only while the stored request is still pending. Returns
	// ErrVersionConflict when the request already left pending and
	// ErrNotFound for an unknown id. Pending-to-terminal is the only
	// mutation a request ever sees, so this conditional write serializes
	// concurrent accept/reject/cancel on the same request.
	DecideRequest(ctx context.Context, req *FoodRequest) error

	ListRequestsByFood(ctx context.Context, foodID string) ([]*FoodRequest, error)

	// ListRequestsByParty returns requests where userID is the requester
	// or the owner of the target listing.
	ListRequestsByParty(ctx context.Context, userID string) ([]*FoodRequest, error)
}

// Store combines the driver lifecycle with all collections.
type Store interface {
	Driver
	UserStore
	FoodStore
	RequestStore
}

// User is a registered account. Phone is private and must only reach a
// response through the disclosure package.
type User struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Email        string `json:"email" gorm:"uniqueIndex"`
	DisplayName  string `json:"display_name"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"-"`
	FCMToken     string `json:"fcm_token,omitempty"` // opaque push token, optional
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// FoodItem is a surplus-food listing with a pickup window.
// Version is a monotonic counter for optimistic concurrency; every
// successful update bumps it by one.
type FoodItem struct {
	ID             string   `json:"id" gorm:"primaryKey"`
	OwnerID        string   `json:"owner_id" gorm:"index"`
	Title          string   `json:"title"`
	Items          []string `json:"items" gorm:"serializer:json"`
	QuantityValue  float64  `json:"quantity_value"`
	QuantityUnit   string   `json:"quantity_unit"` // servings, kg
	PickupLat      float64  `json:"pickup_lat"`
	PickupLng      float64  `json:"pickup_lng"`
	PickupAddress  string   `json:"pickup_address"`
	AvailableUntil int64    `json:"available_until"`
	Status         string   `json:"status"` // active, closed, deleted
	Version        int64    `json:"version"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

// FoodRequest is a claim against a listing. OwnerID is denormalized from
// the listing so a single indexed query serves "my requests" for both
// sides of the hand-off.
type FoodRequest struct {
	ID             string `json:"id" gorm:"primaryKey"`
	FoodID         string `json:"food_id" gorm:"index"`
	RequesterID    string `json:"requester_id" gorm:"index"`
	OwnerID        string `json:"owner_id" gorm:"index"`
	Status         string `json:"status"` // pending, accepted, rejected, cancelled
	Notes          string `json:"notes,omitempty"`
	DecisionReason string `json:"decision_reason,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	DecidedAt      int64  `json:"decided_at,omitempty"`
}
