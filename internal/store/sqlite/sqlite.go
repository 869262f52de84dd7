// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sharemeal/sharemeal-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Store interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "sharemeal.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.User{},
		&store.FoodItem{},
		&store.FoodRequest{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UserStore implementation

// CreateUser inserts a new user.
func (d *Driver) CreateUser(ctx context.Context, user *store.User) error {
	result := d.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return store.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	result := d.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var user store.User
	result := d.db.WithContext(ctx).First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// UpdateUser updates an existing user.
func (d *Driver) UpdateUser(ctx context.Context, user *store.User) error {
	result := d.db.WithContext(ctx).Save(user)
	return result.Error
}

// FoodStore implementation

// CreateFoodItem creates a new listing.
func (d *Driver) CreateFoodItem(ctx context.Context, item *store.FoodItem) error {
	result := d.db.WithContext(ctx).Create(item)
	return result.Error
}

// GetFoodItem retrieves a listing by id.
func (d *Driver) GetFoodItem(ctx context.Context, id string) (*store.FoodItem, error) {
	var item store.FoodItem
	result := d.db.WithContext(ctx).First(&item, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &item, nil
}

// UpdateFoodItem performs the version-checked conditional write. The row
// is only touched when it still carries expectedVersion, so concurrent
// writers race on a single UPDATE statement and exactly one wins.
func (d *Driver) UpdateFoodItem(ctx context.Context, item *store.FoodItem, expectedVersion int64) error {
	next := *item
	next.Version = expectedVersion + 1

	result := d.db.WithContext(ctx).Model(&store.FoodItem{}).
		Where("id = ? AND version = ?", item.ID, expectedVersion).
		Select("*").Omit("id", "created_at").
		Updates(&next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := d.db.WithContext(ctx).Model(&store.FoodItem{}).
			Where("id = ?", item.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}

	item.Version = next.Version
	return nil
}

// ListFoodItems returns all listings.
func (d *Driver) ListFoodItems(ctx context.Context) ([]*store.FoodItem, error) {
	var items []*store.FoodItem
	result := d.db.WithContext(ctx).Find(&items)
	if result.Error != nil {
		return nil, result.Error
	}
	return items, nil
}

// ListFoodItemsByOwner returns listings owned by ownerID.
func (d *Driver) ListFoodItemsByOwner(ctx context.Context, ownerID string) ([]*store.FoodItem, error) {
	var items []*store.FoodItem
	result := d.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&items)
	if result.Error != nil {
		return nil, result.Error
	}
	return items, nil
}

// RequestStore implementation

// CreateRequest creates a new request.
func (d *Driver) CreateRequest(ctx context.Context, req *store.FoodRequest) error {
	result := d.db.WithContext(ctx).Create(req)
	return result.Error
}

// GetRequest retrieves a request by id.
func (d *Driver) GetRequest(ctx context.Context, id string) (*store.FoodRequest, error) {
	var req store.FoodRequest
	result := d.db.WithContext(ctx).First(&req, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &req, nil
}

// DecideRequest commits a pending request's terminal transition. The row
// is only touched while it still reads pending, so concurrent deciders on
// the same request race on a single UPDATE and exactly one wins.
func (d *Driver) DecideRequest(ctx context.Context, req *store.FoodRequest) error {
	result := d.db.WithContext(ctx).Model(&store.FoodRequest{}).
		Where("id = ? AND status = ?", req.ID, store.RequestStatusPending).
		Updates(map[string]any{
			"status":          req.Status,
			"decision_reason": req.DecisionReason,
			"decided_at":      req.DecidedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := d.db.WithContext(ctx).Model(&store.FoodRequest{}).
			Where("id = ?", req.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

// ListRequestsByFood returns all requests targeting a listing.
func (d *Driver) ListRequestsByFood(ctx context.Context, foodID string) ([]*store.FoodRequest, error) {
	var reqs []*store.FoodRequest
	result := d.db.WithContext(ctx).Where("food_id = ?", foodID).Find(&reqs)
	if result.Error != nil {
		return nil, result.Error
	}
	return reqs, nil
}

// ListRequestsByParty returns requests where userID is requester or owner.
func (d *Driver) ListRequestsByParty(ctx context.Context, userID string) ([]*store.FoodRequest, error) {
	var reqs []*store.FoodRequest
	result := d.db.WithContext(ctx).
		Where("requester_id = ? OR owner_id = ?", userID, userID).
		Find(&reqs)
	if result.Error != nil {
		return nil, result.Error
	}
	return reqs, nil
}

// Compile-time interface check
var _ store.Store = (*Driver)(nil)
