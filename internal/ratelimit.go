package internal

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	rps     float64
	burst   float64
	ttl     time.Duration
	swept   time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimitHandler wraps next with a token bucket per client IP. Webhook
// providers treat 429 as a transient failure and redeliver, so throttled
// events are delayed, not lost. rps <= 0 disables limiting entirely.
func NewRateLimitHandler(next http.Handler, rps int64, burst int64, ttl time.Duration) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := &rateLimiter{
		buckets: make(map[string]*rateBucket),
		rps:     float64(rps),
		burst:   float64(burst),
		ttl:     ttl,
		swept:   time.Now(),
	}
	if limiter.burst <= 0 {
		limiter.burst = limiter.rps
		if limiter.burst < 1 {
			limiter.burst = 1
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	bucket, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &rateBucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(bucket.last).Seconds()
	bucket.tokens += elapsed * l.rps
	if bucket.tokens > l.burst {
		bucket.tokens = l.burst
	}
	bucket.last = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens -= 1
	return true
}

// sweep drops buckets idle longer than ttl so one-off senders do not grow
// the map forever. Runs at most once per ttl, under the caller's lock.
func (l *rateLimiter) sweep(now time.Time) {
	if l.ttl <= 0 || now.Sub(l.swept) < l.ttl {
		return
	}
	for key, bucket := range l.buckets {
		if now.Sub(bucket.last) > l.ttl {
			delete(l.buckets, key)
		}
	}
	l.swept = now
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
