// Package cache memoises search responses behind a pluggable byte store.
// Concurrent misses for the same key are collapsed with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/metrics"
)

const keyPrefix = "search:"

// Store holds encoded values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Purge(ctx context.Context) (int64, error)
	Name() string
}

// QueryCache caches values of type T, JSON-encoded, in a Store.
type QueryCache[T any] struct {
	store   Store
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache over store. m may be nil.
func New[T any](store Store, m *metrics.Metrics) *QueryCache[T] {
	return &QueryCache[T]{
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache", "store", store.Name()),
	}
}

// Key derives a cache key from the given parts.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &value, true
}

func (c *QueryCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. The boolean reports a cache hit.
func (c *QueryCache[T]) GetOrCompute(ctx context.Context, key string, compute func() (*T, error)) (*T, bool, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value)
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*T), false, nil
}

// Invalidate drops every cached entry.
func (c *QueryCache[T]) Invalidate(ctx context.Context) error {
	deleted, err := c.store.Purge(ctx)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache[T]) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
