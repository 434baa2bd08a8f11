package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wonny/marketlens/internal/contracts"
)

// ErrCompute wraps a failed computation that could not be covered by a cached value
var ErrCompute = errors.New("cache compute failed")

// StalePolicy decides what a failed refresh returns when an expired value exists
type StalePolicy int

const (
	// PropagateOnError surfaces the failure even if an expired value exists
	PropagateOnError StalePolicy = iota
	// ServeStaleOnError returns the expired value and logs the failure
	ServeStaleOnError
)

func (p StalePolicy) String() string {
	if p == ServeStaleOnError {
		return "serve_stale"
	}
	return "propagate"
}

// Options configures a Cache
type Options struct {
	Name      string
	OpTimeout time.Duration // bound on one computation, shared by all its waiters
	Policy    StalePolicy
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// ComputeFunc produces the value for a key
type ComputeFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
	lastErr   error
}

func (e *entry[V]) live(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// Cache is a keyed TTL store with single-flight recomputation
// ⭐ SSOT: 만료 확인 → 재계산 결정 → in-flight 등록은 singleflight + 재확인으로 원자적
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	gens    map[K]uint64 // bumped by Invalidate; stale flights don't install
	group   singleflight.Group

	name      string
	opTimeout time.Duration
	policy    StalePolicy
	now       func() time.Time
	logger    zerolog.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	computes    atomic.Int64
	failures    atomic.Int64
	staleServes atomic.Int64
}

// New creates a cache
func New[K comparable, V any](opts Options) *Cache[K, V] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "cache"
	}
	return &Cache[K, V]{
		entries:   make(map[K]*entry[V]),
		gens:      make(map[K]uint64),
		name:      opts.Name,
		opTimeout: opts.OpTimeout,
		policy:    opts.Policy,
		now:       opts.Clock,
		logger:    opts.Logger.With().Str("cache", opts.Name).Logger(),
	}
}

// GetOrCompute returns the live value for key, or runs fn once for all concurrent callers.
//
// The computation runs under its own OpTimeout and is detached from the caller's
// cancellation; a caller whose ctx ends stops waiting without cancelling it.
func (c *Cache[K, V]) GetOrCompute(ctx context.Context, key K, ttl time.Duration, fn ComputeFunc[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(flightKey(key), func() (interface{}, error) {
		return c.refresh(ctx, key, ttl, fn)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	}
}

// refresh runs inside the flight
func (c *Cache[K, V]) refresh(ctx context.Context, key K, ttl time.Duration, fn ComputeFunc[V]) (V, error) {
	// a flight that finished just before this one may already have refreshed the key
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.live(c.now()) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gens[key]
	c.mu.Unlock()

	c.computes.Add(1)
	start := c.now()

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
	defer cancel()

	v, err := c.run(opCtx, fn)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failures.Add(1)
		var zero V

		e, hasPrior := c.entries[key]
		if hasPrior {
			e.lastErr = err
		}

		if hasPrior && c.policy == ServeStaleOnError {
			c.staleServes.Add(1)
			c.logger.Warn().Err(err).
				Str("key", flightKey(key)).
				Dur("age", c.now().Sub(e.createdAt)).
				Msg("refresh failed, serving stale value")
			return e.value, nil
		}

		c.logger.Warn().Err(err).Str("key", flightKey(key)).Msg("refresh failed")
		return zero, fmt.Errorf("%w: %s: %w", ErrCompute, c.name, err)
	}

	if c.gens[key] == gen {
		c.entries[key] = &entry[V]{value: v, createdAt: c.now(), ttl: ttl}
	}

	c.logger.Debug().
		Str("key", flightKey(key)).
		Dur("took", c.now().Sub(start)).
		Msg("refreshed")

	return v, nil
}

type outcome[V any] struct {
	v   V
	err error
}

// run executes fn, returning a timeout failure as soon as ctx expires even if fn ignores ctx
func (c *Cache[K, V]) run(ctx context.Context, fn ComputeFunc[V]) (V, error) {
	done := make(chan outcome[V], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero V
				done <- outcome[V]{zero, fmt.Errorf("compute panicked: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[V]{v, err}
	}()

	var zero V
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s after %v", contracts.ErrTimeout, c.name, c.opTimeout)
		}
		return r.v, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %s after %v", contracts.ErrTimeout, c.name, c.opTimeout)
	}
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.live(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Peek returns the stored value regardless of age
func (c *Cache[K, V]) Peek(key K) (V, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	return e.value, e.createdAt, true
}

// Invalidate forces the next GetOrCompute for key to recompute
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()

	c.group.Forget(flightKey(key))
}

// InvalidateAll drops every entry
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	keys := make([]K, 0, len(c.entries)+len(c.gens))
	for k := range c.entries {
		keys = append(keys, k)
	}
	for k := range c.gens {
		if _, ok := c.entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		c.gens[k]++
	}
	c.entries = make(map[K]*entry[V])
	c.mu.Unlock()

	for _, k := range keys {
		c.group.Forget(flightKey(k))
	}
	c.logger.Info().Int("keys", len(keys)).Msg("invalidated")
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for k, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, k)
			count++
		}
	}
	return count
}

// Len returns the number of stored entries (live or expired)
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats represents cache statistics
type Stats struct {
	Name        string `json:"name"`
	Policy      string `json:"policy"`
	Entries     int    `json:"entries"`
	Live        int    `json:"live"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Computes    int64  `json:"computes"`
	Failures    int64  `json:"failures"`
	StaleServes int64  `json:"stale_serves"`
}

// Stats returns cache statistics
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	now := c.now()
	live := 0
	for _, e := range c.entries {
		if e.live(now) {
			live++
		}
	}
	total := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Name:        c.name,
		Policy:      c.policy.String(),
		Entries:     total,
		Live:        live,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Computes:    c.computes.Load(),
		Failures:    c.failures.Load(),
		StaleServes: c.staleServes.Load(),
	}
}

func flightKey[K comparable](key K) string {
	return fmt.Sprint(key)
}
