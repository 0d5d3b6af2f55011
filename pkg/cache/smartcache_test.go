package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRoundTripAndExpiry(t *testing.T) {
	c := New()
	base := time.Now()
	c.now = func() time.Time { return base }

	ctx := context.Background()
	c.Set(ctx, "k", "v", 2*time.Second)
	got, ok := c.Get(ctx, "k")
	if !ok || got != "v" {
		t.Fatalf("get after set = %v/%v, want v/true", got, ok)
	}

	// One nanosecond before the deadline the entry is still live.
	c.now = func() time.Time { return base.Add(2*time.Second - time.Nanosecond) }
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("entry expired early")
	}

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expired entry still visible")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Set(ctx, "pin", 42, 0)
	c.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if _, ok := c.Get(ctx, "pin"); !ok {
		t.Fatalf("zero-ttl entry should not expire")
	}
}

func TestStats(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Set(ctx, "a", 1, time.Minute)
	c.Get(ctx, "a")
	c.Get(ctx, "a")
	c.Get(ctx, "missing")

	stats := c.GetStats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Fatalf("hit rate = %f", stats.HitRate)
	}
	if stats.LiveEntries != 1 {
		t.Fatalf("live entries = %d, want 1", stats.LiveEntries)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New()
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()
	c.Set(ctx, "a", 1, time.Second)
	c.Set(ctx, "b", 2, time.Hour)

	c.now = func() time.Time { return base.Add(time.Minute) }
	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("swept %d, want 1", removed)
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Fatalf("live entry swept")
	}
}

type failingStore struct {
	calls int
}

func (f *failingStore) Get(context.Context, string) (Entry, bool, error) {
	f.calls++
	return Entry{}, false, errors.New("backend down")
}
func (f *failingStore) Set(context.Context, Entry) error { f.calls++; return errors.New("backend down") }
func (f *failingStore) Delete(context.Context, string) error {
	f.calls++
	return errors.New("backend down")
}

func TestBackendFailureDegradesToMiss(t *testing.T) {
	backend := &failingStore{}
	c := New(WithBackend(backend))
	ctx := context.Background()

	// Failures must not surface; the value stays readable from the hot tier.
	c.Set(ctx, "k", "v", time.Minute)
	if got, ok := c.Get(ctx, "k"); !ok || got != "v" {
		t.Fatalf("hot tier lost value on backend failure")
	}

	// After the breaker opens, the backend stops being consulted.
	for i := 0; i < 5; i++ {
		c.Get(ctx, "cold-miss")
	}
	before := backend.calls
	for i := 0; i < 5; i++ {
		c.Get(ctx, "cold-miss")
	}
	if backend.calls != before {
		t.Fatalf("backend still consulted with open breaker")
	}
}

func TestBackendPromotion(t *testing.T) {
	backend := NewMemoryStore()
	c := New(WithBackend(backend))
	ctx := context.Background()
	_ = backend.Set(ctx, Entry{Key: "warm", Value: "w", Timestamp: time.Now(), TTL: time.Minute})

	got, ok := c.Get(ctx, "warm")
	if !ok || got != "w" {
		t.Fatalf("backend entry not served")
	}
	// Second read is served from the hot tier.
	c.mu.RLock()
	_, hot := c.hot["warm"]
	c.mu.RUnlock()
	if !hot {
		t.Fatalf("backend entry not promoted")
	}
}

func TestWarmupPopulates(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Warmup(ctx, []Entry{
		{Key: "w1", Value: "a", TTL: time.Minute},
		{Key: "", Value: "skipped"},
		{Key: "w2", Value: "b", TTL: time.Minute, Priority: PriorityHigh},
	})
	if _, ok := c.Get(ctx, "w1"); !ok {
		t.Fatalf("warmup entry missing")
	}
	if _, ok := c.Get(ctx, "w2"); !ok {
		t.Fatalf("warmup entry missing")
	}
	if c.GetStats().LiveEntries != 2 {
		t.Fatalf("live entries = %d, want 2", c.GetStats().LiveEntries)
	}
}
