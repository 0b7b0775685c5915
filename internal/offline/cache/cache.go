// Package cache keeps the latest known-good response per logical resource so
// reads can be served while the API is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/metrics"
)

// DefaultMaxAge is used when a caller passes a non-positive max age.
const DefaultMaxAge = 24 * time.Hour

// DefaultRetention is how long the pruner keeps entries. Per-call max ages
// may not exceed the retention in use.
const DefaultRetention = 7 * 24 * time.Hour

// Cache is an expiring key -> payload store on a storage.Backend.
// Every read-modify-write of the backend happens under one mutex.
type Cache struct {
	backend   storage.Backend
	resources map[string]domain.ResourceClass
	now       func() time.Time
	log       *slog.Logger

	mu sync.Mutex
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithResources adds path -> class entries to the fixed key table.
func WithResources(paths map[string]domain.ResourceClass) Option {
	return func(c *Cache) {
		for p, class := range paths {
			c.resources[strings.ToLower(normalizePath(p))] = class
		}
	}
}

func New(backend storage.Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		resources: defaultResources(),
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store saves payload under key with the current time. Failures are logged
// and swallowed: caching is best effort.
func (c *Cache) Store(ctx context.Context, key string, payload json.RawMessage) {
	ctx = context.WithoutCancel(ctx)

	entry := domain.CacheEntry{
		Key:      key,
		Payload:  payload,
		StoredAt: c.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Set(ctx, key, string(data)); err != nil {
		c.log.Warn("Failed to store cache entry", "key", key, "error", err)
		return
	}
	if err := c.addToIndex(ctx, key); err != nil {
		c.log.Warn("Failed to update cache index", "key", key, "error", err)
	}
}

// Retrieve returns the payload stored under key if it is at most maxAge old.
// Older entries are evicted. A non-positive maxAge means DefaultMaxAge.
func (c *Cache) Retrieve(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, bool) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.load(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("Failed to read cache entry", "key", key, "error", err)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	if entry.Age(c.now()) > maxAge {
		c.removeLocked(context.WithoutCancel(ctx), key)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return entry.Payload, true
}

// load reads and decodes one entry. Undecodable entries are removed and
// reported as not found.
func (c *Cache) load(ctx context.Context, key string) (*domain.CacheEntry, error) {
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Warn("Dropping corrupt cache entry", "key", key, "error", err)
		c.removeLocked(context.WithoutCancel(ctx), key)
		return nil, storage.ErrNotFound
	}
	return &entry, nil
}

// Evict removes one entry.
func (c *Cache) Evict(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("evict %s: %w", key, err)
	}
	return c.removeFromIndex(ctx, key)
}

// Clear removes every cached entry and the index.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.index(ctx)
	if err != nil {
		c.log.Warn("Cache index unreadable, clearing fixed keys only", "error", err)
	}
	for _, class := range domain.ResourceClasses {
		keys = appendUnique(keys, domain.CacheKey(class))
	}
	for _, class := range c.resources {
		keys = appendUnique(keys, domain.CacheKey(class))
	}
	keys = append(keys, domain.KeyCacheIndex)

	if err := c.backend.RemoveMany(ctx, keys); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Prune removes every indexed entry older than maxAge and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.index(ctx)
	if err != nil {
		c.log.Warn("Failed to read cache index", "error", err)
		return 0
	}

	now := c.now()
	var stale []string
	for _, key := range keys {
		raw, err := c.backend.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			stale = append(stale, key)
			continue
		}
		if err != nil {
			c.log.Warn("Failed to read cache entry", "key", key, "error", err)
			continue
		}
		var entry domain.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Age(now) > maxAge {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	if err := c.backend.RemoveMany(ctx, stale); err != nil {
		c.log.Warn("Failed to prune cache", "error", err)
		return 0
	}
	remaining := slices.DeleteFunc(keys, func(k string) bool { return slices.Contains(stale, k) })
	if err := c.saveIndex(ctx, remaining); err != nil {
		c.log.Warn("Failed to update cache index", "error", err)
	}
	return len(stale)
}

// Keys returns the keys currently tracked by the index.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index(ctx)
}

func (c *Cache) removeLocked(ctx context.Context, key string) {
	if err := c.backend.Remove(ctx, key); err != nil {
		c.log.Warn("Failed to evict cache entry", "key", key, "error", err)
		return
	}
	if err := c.removeFromIndex(ctx, key); err != nil {
		c.log.Warn("Failed to update cache index", "key", key, "error", err)
	}
}

func (c *Cache) index(ctx context.Context) ([]string, error) {
	raw, err := c.backend.Get(ctx, domain.KeyCacheIndex)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("decode cache index: %w", err)
	}
	return keys, nil
}

func (c *Cache) saveIndex(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return c.backend.Remove(ctx, domain.KeyCacheIndex)
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, domain.KeyCacheIndex, string(data))
}

func (c *Cache) addToIndex(ctx context.Context, key string) error {
	keys, err := c.index(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return c.saveIndex(ctx, append(keys, key))
}

func (c *Cache) removeFromIndex(ctx context.Context, key string) error {
	keys, err := c.index(ctx)
	if err != nil {
		return err
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}
	return c.saveIndex(ctx, slices.Delete(keys, i, i+1))
}

func appendUnique(keys []string, key string) []string {
	if slices.Contains(keys, key) {
		return keys
	}
	return append(keys, key)
}
