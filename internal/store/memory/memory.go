// Package memory implements an in-memory persistence driver.
// It backs tests and dev mode; data does not survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/sharemeal/sharemeal-go/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements store.Store with plain maps guarded by a mutex.
type Driver struct {
	mu       sync.RWMutex
	closed   bool
	users    map[string]*store.User
	byEmail  map[string]string // email -> user id
	items    map[string]*store.FoodItem
	requests map[string]*store.FoodRequest
}

// NewDriver creates a new in-memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	return &Driver{
		users:    make(map[string]*store.User),
		byEmail:  make(map[string]string),
		items:    make(map[string]*store.FoodItem),
		requests: make(map[string]*store.FoodRequest),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op for the in-memory driver.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close marks the driver closed; subsequent operations fail.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) checkOpen() error {
	if d.closed {
		return store.ErrClosed
	}
	return nil
}

// UserStore implementation

func (d *Driver) CreateUser(ctx context.Context, user *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, taken := d.byEmail[user.Email]; taken {
		return store.ErrAlreadyExists
	}
	cp := *user
	d.users[user.ID] = &cp
	d.byEmail[user.Email] = user.ID
	return nil
}

func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	user, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	id, ok := d.byEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d.users[id]
	return &cp, nil
}

func (d *Driver) UpdateUser(ctx context.Context, user *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	prev, ok := d.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	if prev.Email != user.Email {
		delete(d.byEmail, prev.Email)
		d.byEmail[user.Email] = user.ID
	}
	cp := *user
	d.users[user.ID] = &cp
	return nil
}

// FoodStore implementation

func (d *Driver) CreateFoodItem(ctx context.Context, item *store.FoodItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.items[item.ID] = copyItem(item)
	return nil
}

func (d *Driver) GetFoodItem(ctx context.Context, id string) (*store.FoodItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	item, ok := d.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyItem(item), nil
}

// UpdateFoodItem applies the version-checked conditional write under the
// driver lock, giving the same winner-takes-all semantics as the SQL
// conditional UPDATE.
func (d *Driver) UpdateFoodItem(ctx context.Context, item *store.FoodItem, expectedVersion int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	current, ok := d.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	next := copyItem(item)
	next.Version = expectedVersion + 1
	d.items[item.ID] = next
	item.Version = next.Version
	return nil
}

func (d *Driver) ListFoodItems(ctx context.Context) ([]*store.FoodItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	items := make([]*store.FoodItem, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, copyItem(item))
	}
	return items, nil
}

func (d *Driver) ListFoodItemsByOwner(ctx context.Context, ownerID string) ([]*store.FoodItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var items []*store.FoodItem
	for _, item := range d.items {
		if item.OwnerID == ownerID {
			items = append(items, copyItem(item))
		}
	}
	return items, nil
}

// RequestStore implementation

func (d *Driver) CreateRequest(ctx context.Context, req *store.FoodRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *Driver) GetRequest(ctx context.Context, id string) (*store.FoodRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	req, ok := d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// DecideRequest applies the pending-to-terminal transition under the
// driver lock, matching the SQL conditional UPDATE's semantics.
func (d *Driver) DecideRequest(ctx context.Context, req *store.FoodRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	current, ok := d.requests[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != store.RequestStatusPending {
		return store.ErrVersionConflict
	}
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *Driver) ListRequestsByFood(ctx context.Context, foodID string) ([]*store.FoodRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var reqs []*store.FoodRequest
	for _, req := range d.requests {
		if req.FoodID == foodID {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	return reqs, nil
}

func (d *Driver) ListRequestsByParty(ctx context.Context, userID string) ([]*store.FoodRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var reqs []*store.FoodRequest
	for _, req := range d.requests {
		if req.RequesterID == userID || req.OwnerID == userID {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	return reqs, nil
}

func copyItem(item *store.FoodItem) *store.FoodItem {
	cp := *item
	cp.Items = append([]string(nil), item.Items...)
	return &cp
}

// Compile-time interface check
var _ store.Store = (*Driver)(nil)
