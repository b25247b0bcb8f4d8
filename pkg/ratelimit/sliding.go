// Package ratelimit provides a sliding-window rate limiter for outbound
// provider calls.
//
// Unlike a token bucket, the window tracks the timestamp of every admitted
// call: when the window is full the next caller waits exactly until the
// oldest call ages out, so a burst that consumed the whole budget delays
// followers by the true remaining window rather than a smoothed refill rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow admits at most Limit calls per Window. Safe for concurrent
// use. A Limit <= 0 disables limiting entirely.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a sliding-window limiter admitting limit calls per window.
func New(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until the caller may proceed and records the call's timestamp.
// It returns early with the context's error if ctx is cancelled while
// waiting.
func (s *SlidingWindow) Wait(ctx context.Context) error {
	if s.limit <= 0 {
		return nil
	}
	for {
		s.mu.Lock()
		now := s.now()
		s.prune(now)
		if len(s.stamps) < s.limit {
			s.stamps = append(s.stamps, now)
			s.mu.Unlock()
			return nil
		}
		wait := s.stamps[0].Add(s.window).Sub(now)
		s.mu.Unlock()

		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Delay reports how long a caller arriving now would have to wait before
// being admitted. Zero means the window has capacity.
func (s *SlidingWindow) Delay() time.Duration {
	if s.limit <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	if len(s.stamps) < s.limit {
		return 0
	}
	return s.stamps[0].Add(s.window).Sub(now)
}

// InFlight returns the number of calls currently inside the window.
func (s *SlidingWindow) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	return len(s.stamps)
}

// prune drops timestamps older than the window. Caller must hold s.mu.
func (s *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.stamps) && !s.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.stamps = append(s.stamps[:0], s.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
