// Package cache provides TTL-based caching used for authenticated-user
// lookups and login rate limiting.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Counter provides atomic increment operations for rate limiting.
type Counter interface {
	// Increment adds delta to the counter and returns the new value.
	// If the key doesn't exist, it's created with the given TTL.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Reset sets the counter to 0.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter interfaces.
type CacheWithCounter interface {
	Cache
	Counter
}

// Default TTLs for different cache categories.
const (
	TTLUserLookup = 30 * time.Second // authenticated-user resolution
	TTLRateLimit  = 1 * time.Minute  // rate limit window
)

// DriverFactory creates a cache from driver-specific config.
type DriverFactory func(config map[string]any) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver registers a cache driver factory by name.
// This is typically called from init() in driver packages.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewFromConfig creates a cache using the named driver. driverConfigs is
// the [cache.drivers.<name>] section of the config file, keyed by driver.
func NewFromConfig(driver string, driverConfigs map[string]any) (CacheWithCounter, error) {
	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", driver)
	}

	var dc map[string]any
	if driverConfigs != nil {
		if raw, ok := driverConfigs[driver].(map[string]any); ok {
			dc = raw
		}
	}

	return factory(dc)
}
