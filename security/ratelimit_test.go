package security

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// newTestRateLimiter returns a limiter whose clock is driven by the returned setter.
func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, func(time.Duration)) {
	t.Helper()

	rl := NewRateLimiterWithConfig(cfg)
	t.Cleanup(rl.Stop)

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return rl, advance
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}
	if rl.maxEntries != DefaultMaxLimiters {
		t.Errorf("maxEntries = %d, want %d", rl.maxEntries, DefaultMaxLimiters)
	}
	if rl.idleTimeout != DefaultLimiterIdleTimeout {
		t.Errorf("idleTimeout = %v, want %v", rl.idleTimeout, DefaultLimiterIdleTimeout)
	}
	if rl.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestRateLimiter(t, RateLimiterConfig{RequestsPerSecond: 10, Burst: 5, Logger: slog.Default()})

	for i := 0; i < 5; i++ {
		if !rl.Allow("203.0.113.5") {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}
	if rl.Allow("203.0.113.5") {
		t.Error("Allow() should return false once the burst is spent")
	}
}

func TestRateLimiter_Allow_MultipleIdentifiers(t *testing.T) {
	rl, _ := newTestRateLimiter(t, RateLimiterConfig{RequestsPerSecond: 10, Burst: 2})

	rl.Allow("a")
	rl.Allow("a")
	if rl.Allow("a") {
		t.Error("identifier a should be limited")
	}
	if !rl.Allow("b") {
		t.Error("identifier b should have its own bucket")
	}
}

func TestRateLimiter_Allow_RefillOverTime(t *testing.T) {
	rl, advance := newTestRateLimiter(t, RateLimiterConfig{RequestsPerSecond: 2, Burst: 1})

	if !rl.Allow("a") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("second request should be limited")
	}

	advance(500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("request should be allowed after the bucket refills")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl, _ := newTestRateLimiter(t, RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, MaxEntries: 3})

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c")
	rl.Allow("a") // a is now most recently used
	rl.Allow("d") // evicts b

	if rl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rl.Len())
	}

	rl.mu.Lock()
	_, hasA := rl.entries["a"]
	_, hasB := rl.entries["b"]
	rl.mu.Unlock()

	if !hasA {
		t.Error("recently used entry a was evicted")
	}
	if hasB {
		t.Error("least recently used entry b was not evicted")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, advance := newTestRateLimiter(t, RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, IdleTimeout: time.Minute})

	rl.Allow("stale")
	advance(50 * time.Second)
	rl.Allow("fresh")
	advance(20 * time.Second)

	if removed := rl.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rl.Len())
	}

	advance(2 * time.Minute)
	rl.Sweep()
	if rl.Len() != 0 {
		t.Errorf("Len() = %d after idle period, want 0", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, nil)
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rl.Allow(fmt.Sprintf("client-%d", n%5))
			}
		}(i)
	}
	wg.Wait()

	if rl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", rl.Len())
	}
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
