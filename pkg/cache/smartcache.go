package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanifadr/callward/pkg/resilience"
)

// Stats is the observable state of the cache, consumed by the latency
// optimizer and exposed for reporting.
type Stats struct {
	Hits            int64
	Misses          int64
	HitRate         float64
	LiveEntries     int
	AvgResponseTime time.Duration
}

// SetOption adjusts an entry at Set time.
type SetOption func(*Entry)

func WithTags(tags ...string) SetOption {
	return func(e *Entry) { e.Tags = tags }
}

func WithPriority(priority int) SetOption {
	return func(e *Entry) { e.Priority = priority }
}

// SmartCache is a tiered TTL cache: a hot in-process map in front of an
// optional backing Store. The backend is a pure optimization; when it
// fails, the breaker opens and lookups fall through to misses so the
// turn path never depends on it.
type SmartCache struct {
	mu  sync.RWMutex
	hot map[string]*Entry

	backend Store
	breaker *resilience.CircuitBreaker

	hits       int64
	misses     int64
	lookups    int64
	totalNanos int64

	log       *slog.Logger
	now       func() time.Time
	sweepStop chan struct{}
	sweepOnce sync.Once
}

type Option func(*SmartCache)

// WithBackend attaches an external backing store.
func WithBackend(store Store) Option {
	return func(c *SmartCache) { c.backend = store }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *SmartCache) { c.log = log }
}

func New(opts ...Option) *SmartCache {
	c := &SmartCache{
		hot:       make(map[string]*Entry),
		breaker:   resilience.NewCircuitBreaker(3, 15*time.Second),
		log:       slog.Default(),
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key. Expired entries are treated as
// absent regardless of physical removal timing.
func (c *SmartCache) Get(ctx context.Context, key string) (any, bool) {
	start := c.now()
	defer func() {
		atomic.AddInt64(&c.lookups, 1)
		atomic.AddInt64(&c.totalNanos, int64(c.now().Sub(start)))
	}()

	now := c.now()
	c.mu.Lock()
	if entry, ok := c.hot[key]; ok {
		if entry.Expired(now) {
			delete(c.hot, key)
		} else {
			entry.AccessCount++
			entry.LastAccess = now
			value := entry.Value
			c.mu.Unlock()
			atomic.AddInt64(&c.hits, 1)
			return value, true
		}
	}
	c.mu.Unlock()

	if entry, ok := c.backendGet(ctx, key, now); ok {
		c.mu.Lock()
		promoted := entry
		promoted.AccessCount++
		promoted.LastAccess = now
		c.hot[key] = &promoted
		c.mu.Unlock()
		atomic.AddInt64(&c.hits, 1)
		return entry.Value, true
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set stores a value with a TTL in the hot tier and, best-effort, in the
// backing store.
func (c *SmartCache) Set(ctx context.Context, key string, value any, ttl time.Duration, opts ...SetOption) {
	entry := Entry{
		Key:       key,
		Value:     value,
		Timestamp: c.now(),
		TTL:       ttl,
		Priority:  PriorityNormal,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	c.mu.Lock()
	stored := entry
	c.hot[key] = &stored
	c.mu.Unlock()

	if c.backend != nil && c.breaker.Allow() {
		if err := c.backend.Set(ctx, entry); err != nil {
			c.breaker.OnError()
			c.log.Warn("cache_backend_set_failed", "key", key, "error", err)
		} else {
			c.breaker.OnSuccess()
		}
	}
}

// Delete removes a key from both tiers.
func (c *SmartCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.hot, key)
	c.mu.Unlock()
	if c.backend != nil && c.breaker.Allow() {
		if err := c.backend.Delete(ctx, key); err != nil {
			c.breaker.OnError()
		}
	}
}

// Warmup proactively installs likely-needed entries. Failures are logged,
// never surfaced; warm-up must not affect the live path.
func (c *SmartCache) Warmup(ctx context.Context, entries []Entry) {
	for _, entry := range entries {
		if entry.Key == "" {
			continue
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = c.now()
		}
		select {
		case <-ctx.Done():
			c.log.Warn("cache_warmup_aborted", "error", ctx.Err())
			return
		default:
		}
		c.Set(ctx, entry.Key, entry.Value, entry.TTL, WithTags(entry.Tags...), WithPriority(entry.Priority))
	}
	c.log.Debug("cache_warmup_done", "entries", len(entries))
}

// GetStats reports hit rate, live entry count and average lookup time.
func (c *SmartCache) GetStats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	lookups := atomic.LoadInt64(&c.lookups)
	total := atomic.LoadInt64(&c.totalNanos)

	now := c.now()
	live := 0
	c.mu.RLock()
	for _, entry := range c.hot {
		if !entry.Expired(now) {
			live++
		}
	}
	c.mu.RUnlock()

	stats := Stats{Hits: hits, Misses: misses, LiveEntries: live}
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}
	if lookups > 0 {
		stats.AvgResponseTime = time.Duration(total / lookups)
	}
	return stats
}

// Sweep physically removes expired hot entries and returns the count.
func (c *SmartCache) Sweep() int {
	now := c.now()
	removed := 0
	c.mu.Lock()
	for key, entry := range c.hot {
		if entry.Expired(now) {
			delete(c.hot, key)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// StartSweeper runs Sweep on an interval until StopSweeper is called.
func (c *SmartCache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.sweepStop:
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.log.Debug("cache_swept", "removed", n)
				}
			}
		}
	}()
}

func (c *SmartCache) StopSweeper() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

func (c *SmartCache) backendGet(ctx context.Context, key string, now time.Time) (Entry, bool) {
	if c.backend == nil || !c.breaker.Allow() {
		return Entry{}, false
	}
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.breaker.OnError()
		c.log.Warn("cache_backend_get_failed", "key", key, "error", err)
		return Entry{}, false
	}
	c.breaker.OnSuccess()
	if !ok || entry.Expired(now) {
		return Entry{}, false
	}
	return entry, true
}
