package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited is the rate used when limiting is disabled.
const unlimited = 1_000_000_000

// RateLimiter provides rate limiting using the token bucket algorithm.
//
// This implementation wraps golang.org/x/time/rate, which allows bursts
// while enforcing the sustained rate.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter with the given sustained rate and burst.
//
// A requestsPerSecond of zero disables limiting. A zero burst with a non-zero
// rate is raised to one so that at least one request can ever pass.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = requestsPerSecond
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether one request may pass now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// KeyedLimiter keeps one token bucket per key, typically a client host, so
// that one noisy peer cannot starve the others.
//
// Buckets idle for longer than the eviction window are dropped on the next
// Allow call that runs a sweep.
type KeyedLimiter struct {
	rps   uint
	burst uint
	idle  time.Duration

	mu        sync.Mutex
	buckets   map[string]*keyedBucket
	lastSweep time.Time
	now       func() time.Time
}

type keyedBucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// NewKeyed creates a KeyedLimiter. idle <= 0 selects ten minutes.
func NewKeyed(requestsPerSecond, burst uint, idle time.Duration) *KeyedLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &KeyedLimiter{
		rps:     requestsPerSecond,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*keyedBucket),
		now:     time.Now,
	}
}

// Allow reports whether key may pass now.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	if now.Sub(k.lastSweep) >= k.idle {
		k.sweepLocked(now)
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &keyedBucket{limiter: New(k.rps, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	k.mu.Unlock()

	return b.limiter.Allow()
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *KeyedLimiter) sweepLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) >= k.idle {
			delete(k.buckets, key)
		}
	}
	k.lastSweep = now
}
