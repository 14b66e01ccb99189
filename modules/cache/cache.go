// Package cache provides a best-effort cache-aside layer over a key-value store.
//
// Cache never returns store errors to its callers: failures are counted,
// logged and treated as misses, and an unreachable store puts the cache in
// degraded mode where reads miss and writes are dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Health states reported by Cache.Health.
const (
	StatusHealthy      = "healthy"
	StatusUnhealthy    = "unhealthy"
	StatusDisconnected = "disconnected"
)

// Cache mediates every read and write against a Backend.
type Cache struct {
	backend       Backend
	prefix        string
	opTimeout     time.Duration
	probeInterval time.Duration

	connected  atomic.Bool
	lastProbe  atomic.Int64
	generation atomic.Uint64
	stats      *Stats
	group      singleflight.Group
	now        func() time.Time

	// pending holds invalidation patterns that could not be applied.
	// They are replayed before the cache leaves degraded mode.
	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// Stats tracks cache statistics for the life of the process.
type Stats struct {
	Hits    atomic.Uint64
	Misses  atomic.Uint64
	Errors  atomic.Uint64
	Sets    atomic.Uint64
	Deletes atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the statistics.
type StatsSnapshot struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Errors  uint64 `json:"errors"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
	HitRate int    `json:"hitRate"`
}

// HealthReport describes the cache connection and its statistics.
type HealthReport struct {
	Status string        `json:"status"`
	Stats  StatsSnapshot `json:"stats"`
}

// Config holds cache configuration.
type Config struct {
	// Prefix is prepended to every key and invalidation pattern.
	Prefix string
	// OpTimeout bounds each backend call.
	OpTimeout time.Duration
	// ProbeInterval is the minimum gap between reconnect probes while disconnected.
	// Zero disables probing.
	ProbeInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:        "",
		OpTimeout:     500 * time.Millisecond,
		ProbeInterval: 5 * time.Second,
	}
}

// New creates a cache over backend. It starts disconnected; call Connect.
func New(backend Backend, cfg Config) *Cache {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultConfig().OpTimeout
	}
	return &Cache{
		backend:       backend,
		prefix:        cfg.Prefix,
		opTimeout:     cfg.OpTimeout,
		probeInterval: cfg.ProbeInterval,
		stats:         &Stats{},
		now:           time.Now,
	}
}

// Connect makes the single start-up connection attempt. On failure the cache
// stays in degraded mode and the error is returned for logging only.
func (c *Cache) Connect(ctx context.Context) error {
	c.lastProbe.Store(c.now().UnixNano())
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.backend.Ping(ctx); err != nil {
		c.connected.Store(false)
		return err
	}
	c.connected.Store(true)
	return nil
}

// Connected reports whether the cache is currently serving requests.
func (c *Cache) Connected() bool {
	return c.connected.Load()
}

// Get looks up key and decodes the cached JSON into dest.
// It reports true only on a hit; errors are counted and reported as misses.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if !c.available(ctx) {
		c.stats.Misses.Add(1)
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	fullKey := c.prefix + key
	data, found, err := c.backend.Get(opCtx, fullKey)
	if err != nil {
		c.fail(ctx, "get", fullKey, err)
		return false
	}
	if !found {
		c.stats.Misses.Add(1)
		log.Printf("[cache] Cache MISS key=%s", fullKey)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.stats.Errors.Add(1)
		log.Printf("[cache] Unreadable entry key=%s: %v", fullKey, err)
		return false
	}

	c.stats.Hits.Add(1)
	log.Printf("[cache] Cache HIT key=%s", fullKey)
	return true
}

// Set stores value as JSON under key with the given TTL.
// It is a no-op in degraded mode and never reports failure.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.available(ctx) {
		return
	}

	fullKey := c.prefix + key
	data, err := json.Marshal(value)
	if err != nil {
		c.stats.Errors.Add(1)
		log.Printf("[cache] Marshal error key=%s: %v", fullKey, err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.backend.Set(opCtx, fullKey, data, ttl); err != nil {
		c.fail(ctx, "set", fullKey, err)
		return
	}
	c.stats.Sets.Add(1)
	log.Printf("[cache] Cache SET key=%s (TTL: %s)", fullKey, ttl)
}

// Invalidate removes every entry whose key matches the glob pattern.
// In-flight loads started before the call will not populate the cache.
// The delete is attempted in degraded mode too; a failed delete is kept and
// replayed before the next successful probe reconnects the cache.
func (c *Cache) Invalidate(ctx context.Context, pattern string) {
	c.generation.Add(1)

	fullPattern := c.prefix + pattern
	c.addPending(fullPattern)
	err := c.flushPending(ctx)
	if err == nil {
		return
	}

	if c.connected.Load() {
		c.fail(ctx, "invalidate", fullPattern, err)
		return
	}
	log.Printf("[cache] invalidate deferred pattern=%s: %v", fullPattern, err)
}

func (c *Cache) deletePattern(ctx context.Context, fullPattern string) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	n, err := c.backend.DeletePattern(opCtx, fullPattern)
	if err != nil {
		return err
	}
	c.stats.Deletes.Add(uint64(n))
	if n > 0 {
		log.Printf("[cache] Cache INVALIDATED %d keys matching %q", n, fullPattern)
	}
	return nil
}

func (c *Cache) addPending(fullPattern string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending == nil {
		c.pending = make(map[string]struct{})
	}
	c.pending[fullPattern] = struct{}{}
}

// flushPending replays deferred invalidations, stopping at the first failure.
func (c *Cache) flushPending(ctx context.Context) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for pattern := range c.pending {
		if err := c.deletePattern(ctx, pattern); err != nil {
			return err
		}
		delete(c.pending, pattern)
	}
	return nil
}

// GetOrLoad is the cache-aside read: it serves key from the cache, or calls
// load on a miss and populates the cache with the result. Concurrent misses
// for the same key share one load. Load errors are returned and never cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	gen := c.generation.Load()
	flightKey := key + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		if c.generation.Load() == gen {
			c.Set(ctx, key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() StatsSnapshot {
	hits := c.stats.Hits.Load()
	misses := c.stats.Misses.Load()

	return StatsSnapshot{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.stats.Errors.Load(),
		Sets:    c.stats.Sets.Load(),
		Deletes: c.stats.Deletes.Load(),
		HitRate: HitRate(hits, misses),
	}
}

// HitRate returns round(hits/(hits+misses)*100), or 0 with no observations.
func HitRate(hits, misses uint64) int {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(hits) / float64(total) * 100))
}

// ResetStats resets all statistics counters. Only called on explicit operator request.
func (c *Cache) ResetStats() {
	c.stats.Hits.Store(0)
	c.stats.Misses.Store(0)
	c.stats.Errors.Store(0)
	c.stats.Sets.Store(0)
	c.stats.Deletes.Store(0)
}

// Health pings the backend. A successful ping also ends degraded mode.
func (c *Cache) Health(ctx context.Context) HealthReport {
	report := HealthReport{Stats: c.Stats()}

	if !c.connected.Load() {
		if c.probe(ctx) {
			report.Status = StatusHealthy
		} else {
			report.Status = StatusDisconnected
		}
		return report
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.Ping(opCtx); err != nil {
		c.fail(ctx, "ping", "", err)
		report.Status = StatusUnhealthy
		return report
	}
	report.Status = StatusHealthy
	return report
}

// Close closes the backend.
func (c *Cache) Close() error {
	c.connected.Store(false)
	return c.backend.Close()
}

// available reports whether backend calls should be attempted, probing the
// backend at most once per probe interval while disconnected.
func (c *Cache) available(ctx context.Context) bool {
	if c.connected.Load() {
		return true
	}
	if c.probeInterval <= 0 {
		return false
	}

	last := c.lastProbe.Load()
	now := c.now().UnixNano()
	if time.Duration(now-last) < c.probeInterval {
		return false
	}
	if !c.lastProbe.CompareAndSwap(last, now) {
		return false
	}
	return c.probe(ctx)
}

func (c *Cache) probe(ctx context.Context) bool {
	c.lastProbe.Store(c.now().UnixNano())

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.backend.Ping(opCtx); err != nil {
		return false
	}
	if err := c.flushPending(ctx); err != nil {
		log.Printf("[cache] Replaying invalidations failed, staying degraded: %v", err)
		return false
	}
	if c.connected.CompareAndSwap(false, true) {
		log.Println("[cache] Reconnected, leaving degraded mode")
	}
	return true
}

// fail counts a backend error and drops into degraded mode, unless the
// failure came from the caller giving up on its own context.
func (c *Cache) fail(ctx context.Context, op, key string, err error) {
	c.stats.Errors.Add(1)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Printf("[cache] %s cancelled key=%s: %v", op, key, err)
		return
	}
	if c.connected.CompareAndSwap(true, false) {
		c.lastProbe.Store(c.now().UnixNano())
		log.Printf("[cache] %s error key=%s: %v (degraded mode)", op, key, err)
		return
	}
	log.Printf("[cache] %s error key=%s: %v", op, key, err)
}
