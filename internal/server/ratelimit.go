package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Buckets idle longer than this are dropped the next time a new client
// registers, so the map stays bounded without a background sweeper.
const limiterIdleTTL = 10 * time.Minute

// ipLimiter hands out one token bucket per client IP. The API-wide rate is
// fixed at construction; per-client state is only the bucket fill level.
type ipLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*clientBucket
	rps      rate.Limit
	burst    int
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*clientBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request from ip fits inside its bucket right now.
func (m *ipLimiter) Allow(ip string) bool {
	return m.getBucket(ip).lim.Allow()
}

func (m *ipLimiter) getBucket(ip string) *clientBucket {
	now := time.Now()

	m.mu.RLock()
	b, exists := m.limiters[ip]
	m.mu.RUnlock()
	if exists {
		b.lastSeen.Store(now.UnixNano())
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check to prevent race condition
	if b, exists = m.limiters[ip]; exists {
		b.lastSeen.Store(now.UnixNano())
		return b
	}

	m.pruneIdle(now)

	b = &clientBucket{lim: rate.NewLimiter(m.rps, m.burst)}
	b.lastSeen.Store(now.UnixNano())
	m.limiters[ip] = b
	return b
}

// pruneIdle drops buckets unused for longer than limiterIdleTTL.
// Caller must hold the write lock.
func (m *ipLimiter) pruneIdle(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	for ip, b := range m.limiters {
		if b.lastSeen.Load() < cutoff {
			delete(m.limiters, ip)
		}
	}
}
