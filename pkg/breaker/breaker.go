// Package breaker implements a three-state circuit breaker for outbound
// provider calls.
//
// The breaker counts consecutive hard failures only: rate-limit pushback is
// reported through RecordThrottled and never moves the failure counter, since
// a throttling provider is healthy and pushing back, not broken.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's position in its lifecycle.
type State int32

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until RecoveryTimeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config controls breaker behavior.
type Config struct {
	// FailureThreshold is the number of consecutive hard failures that opens
	// the breaker (default 5).
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before admitting a
	// probe (default 60s).
	RecoveryTimeout time.Duration
	// OnStateChange, when set, is called synchronously on every transition.
	OnStateChange func(from, to State)
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		cfg: cfg,
		now: time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// until RecoveryTimeout has elapsed, at which point it moves to half-open and
// admits exactly one probe; concurrent callers keep getting ErrOpen until the
// probe's outcome is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure counter; a successful half-open probe
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probing = false
		b.transition(StateClosed)
	}
}

// RecordFailure counts a hard failure. Crossing the threshold while closed
// opens the breaker; a failed half-open probe re-opens it and restarts the
// recovery timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.probing = false
		b.open()
	}
}

// RecordThrottled records rate-limit pushback. It never counts toward the
// failure threshold; if a half-open probe was throttled, the next caller may
// probe again.
func (b *Breaker) RecordThrottled() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.failures = 0
	b.openedAt = b.now()
	b.transition(StateOpen)
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
