// Package cache provides instance-scoped TTL caches for engine results.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Default TTLs for engine results
const (
	TTLCorrelation  = 5 * time.Minute  // cross-position analytics
	TTLOptimization = 10 * time.Minute // optimization results
	TTLAnalysis     = 5 * time.Minute  // per-position rebalancing analyses
)

// Recorder receives hit/miss notifications. *metrics.Registry satisfies it.
type Recorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	SetCacheSize(cache string, entries int)
}

// Stats summarises cache activity
type Stats struct {
	Name        string  `json:"name"`
	Entries     int     `json:"entries"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
	TTLSeconds  float64 `json:"ttl_seconds"`
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL map with single-flight computation per key
type Cache[T any] struct {
	mu          sync.RWMutex
	entries     map[string]entry[T]
	group       singleflight.Group
	name        string
	ttl         time.Duration
	hits        uint64
	misses      uint64
	expirations uint64
	recorder    Recorder
	now         func() time.Time
	log         zerolog.Logger
}

// New creates a cache. recorder may be nil.
func New[T any](name string, ttl time.Duration, recorder Recorder, log zerolog.Logger) *Cache[T] {
	return &Cache[T]{
		entries:  make(map[string]entry[T]),
		name:     name,
		ttl:      ttl,
		recorder: recorder,
		now:      time.Now,
		log:      log.With().Str("component", "cache").Str("cache", name).Logger(),
	}
}

// SetClock overrides the time source (tests)
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Name returns the cache name
func (c *Cache[T]) Name() string {
	return c.name
}

// Get returns a live entry
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.hits++
		c.recordHit()
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
		c.expirations++
	}
	c.misses++
	c.recordMiss()

	var zero T
	return zero, false
}

// Set stores a value with the cache TTL
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
	if c.recorder != nil {
		c.recorder.SetCacheSize(c.name, len(c.entries))
	}
}

// Delete removes a single key
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// GetOrCompute returns the cached value for key or runs compute once for all
// concurrent callers of the same key. force skips the lookup and overwrites the entry.
// The bool result reports whether the value came from the cache.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, force bool, compute func(context.Context) (T, error)) (T, bool, error) {
	if !force {
		if v, ok := c.Get(key); ok {
			return v, true, nil
		}
	}

	flightKey := key
	if force {
		flightKey = "force:" + key
	}

	result, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}

	v, ok := result.(T)
	if !ok {
		var zero T
		return zero, false, fmt.Errorf("cache %s: unexpected value type %T", c.name, result)
	}
	return v, false, nil
}

// Clear drops every entry
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry[T])
	if c.recorder != nil {
		c.recorder.SetCacheSize(c.name, 0)
	}
	c.log.Debug().Int("dropped", n).Msg("Cache cleared")
}

// Prune removes expired entries and returns how many were dropped
func (c *Cache[T]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.expirations += uint64(removed)
	if c.recorder != nil {
		c.recorder.SetCacheSize(c.name, len(c.entries))
	}
	return removed
}

// Stats returns a snapshot of the cache counters
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Name:        c.name,
		Entries:     len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		Expirations: c.expirations,
		TTLSeconds:  c.ttl.Seconds(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache[T]) recordHit() {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(c.name)
	}
}

func (c *Cache[T]) recordMiss() {
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(c.name)
	}
}
