package internal

import (
	"testing"
	"time"
)

// TestRateLimiterAllow tests refill after exhausting the burst.
func TestRateLimiterAllow(t *testing.T) {
	limiter := &rateLimiter{
		buckets: make(map[string]*rateBucket),
		rps:     1,
		burst:   1,
		swept:   time.Now(),
	}

	if !limiter.allow("client") {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.allow("client") {
		t.Fatalf("expected second request to be rate limited")
	}

	time.Sleep(1100 * time.Millisecond)

	if !limiter.allow("client") {
		t.Fatalf("expected request after refill to be allowed")
	}
}

// TestRateLimiterIsolatesClients tests that one noisy sender does not
// throttle another.
func TestRateLimiterIsolatesClients(t *testing.T) {
	limiter := &rateLimiter{
		buckets: make(map[string]*rateBucket),
		rps:     1,
		burst:   1,
		swept:   time.Now(),
	}

	if !limiter.allow("noisy") {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.allow("noisy") {
		t.Fatalf("expected noisy client to be limited")
	}
	if !limiter.allow("quiet") {
		t.Fatalf("expected other client to be unaffected")
	}
}

// TestRateLimiterSweep tests that idle buckets are evicted after the ttl.
func TestRateLimiterSweep(t *testing.T) {
	limiter := &rateLimiter{
		buckets: make(map[string]*rateBucket),
		rps:     1,
		burst:   1,
		ttl:     10 * time.Millisecond,
		swept:   time.Now().Add(-time.Hour),
	}
	limiter.buckets["stale"] = &rateBucket{tokens: 0, last: time.Now().Add(-time.Minute)}

	limiter.allow("fresh")
	if _, ok := limiter.buckets["stale"]; ok {
		t.Fatalf("expected stale bucket to be swept")
	}
	if _, ok := limiter.buckets["fresh"]; !ok {
		t.Fatalf("expected fresh bucket to remain")
	}
}
