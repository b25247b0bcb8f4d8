package server

import (
	"testing"
	"time"
)

func TestIPLimiterBurstThenDeny(t *testing.T) {
	m := newIPLimiter(1, 2)

	if !m.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if !m.Allow("10.0.0.1") {
		t.Fatal("second request should pass within burst")
	}
	if m.Allow("10.0.0.1") {
		t.Fatal("third request should exceed burst")
	}
}

func TestIPLimiterClientsAreIndependent(t *testing.T) {
	m := newIPLimiter(1, 1)

	if !m.Allow("10.0.0.1") {
		t.Fatal("first client should pass")
	}
	if m.Allow("10.0.0.1") {
		t.Fatal("first client should be throttled")
	}
	if !m.Allow("10.0.0.2") {
		t.Fatal("second client has its own bucket")
	}
}

func TestIPLimiterPrunesIdleBuckets(t *testing.T) {
	m := newIPLimiter(1, 1)

	m.Allow("10.0.0.1")
	m.Allow("10.0.0.2")

	// Age the first bucket past the TTL, then register a new client to
	// trigger the prune.
	m.mu.Lock()
	m.limiters["10.0.0.1"].lastSeen.Store(time.Now().Add(-limiterIdleTTL - time.Minute).UnixNano())
	m.mu.Unlock()

	m.Allow("10.0.0.3")

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.limiters["10.0.0.1"]; ok {
		t.Fatal("idle bucket should have been pruned")
	}
	if _, ok := m.limiters["10.0.0.2"]; !ok {
		t.Fatal("active bucket should survive the prune")
	}
	if _, ok := m.limiters["10.0.0.3"]; !ok {
		t.Fatal("new client should get a bucket")
	}
}
