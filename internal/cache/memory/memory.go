// Package memory provides an in-memory cache implementation with TTL support.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sharemeal/sharemeal-go/internal/cache"
	"github.com/sharemeal/sharemeal-go/internal/cfg"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) (cache.CacheWithCounter, error) {
		var s settings
		if err := cfg.Decode(config, &s); err != nil {
			return nil, err
		}
		return New(s.defaultTTL(), s.cleanupInterval()), nil
	})
}

// settings holds driver config from [cache.drivers.memory].
type settings struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

func (s *settings) defaultTTL() time.Duration {
	if s.DefaultTTLSeconds > 0 {
		return time.Duration(s.DefaultTTLSeconds) * time.Second
	}
	return 5 * time.Minute
}

func (s *settings) cleanupInterval() time.Duration {
	if s.CleanupIntervalSeconds > 0 {
		return time.Duration(s.CleanupIntervalSeconds) * time.Second
	}
	return time.Minute
}

// item represents a cached value with expiration.
type item struct {
	value     []byte
	expiresAt time.Time
}

func (i *item) isExpired() bool {
	return time.Now().After(i.expiresAt)
}

// counterItem represents a counter with expiration.
type counterItem struct {
	value     int64
	expiresAt time.Time
}

func (c *counterItem) isExpired() bool {
	return time.Now().After(c.expiresAt)
}

// Cache is an in-memory cache with TTL support.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*item
	counters   map[string]*counterItem
	defaultTTL time.Duration
	stopClean  chan struct{}
	stopOnce   sync.Once
}

// New creates a new in-memory cache.
// cleanupInterval specifies how often to evict expired entries (0 disables).
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		counters:   make(map[string]*counterItem),
		defaultTTL: defaultTTL,
		stopClean:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
	for key, ct := range c.counters {
		if now.After(ct.expiresAt) {
			delete(c.counters, key)
		}
	}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.isExpired() {
		return nil, cache.ErrNotFound
	}
	return it.value, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &item{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Increment adds delta to the counter and returns the new value.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ct, ok := c.counters[key]
	if !ok || ct.isExpired() {
		ct = &counterItem{expiresAt: time.Now().Add(ttl)}
		c.counters[key] = ct
	}
	ct.value += delta
	return ct.value, nil
}

// Reset sets the counter to 0.
func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.counters, key)
	return nil
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopClean)
	})
	return nil
}

// Compile-time interface check
var _ cache.CacheWithCounter = (*Cache)(nil)
