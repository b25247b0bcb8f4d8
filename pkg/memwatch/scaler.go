package memwatch

import (
	"math"
	"sync"
	"time"

	"github.com/repolens/repolens/pkg/mathutil"
)

// Scale cooldowns: shedding load is fast, restoring it is deliberate.
const (
	scaleDownCooldown = 1 * time.Minute
	scaleUpCooldown   = 5 * time.Minute
)

// ConcurrencyScaler adjusts a worker pool's concurrency based on the memory
// zone reported by a Monitor. In the critical zone the cooldown is bypassed
// and concurrency drops to the minimum immediately.
type ConcurrencyScaler struct {
	monitor    Monitor
	workerName string
	enabled    bool
	min        int
	max        int

	mu             sync.Mutex
	current        int
	lastAdjustment time.Time

	now func() time.Time
}

// NewConcurrencyScaler creates a scaler for the named worker pool. When
// disabled, GetConcurrency returns the static value unchanged.
func NewConcurrencyScaler(monitor Monitor, workerName string, enabled bool, min, max int) *ConcurrencyScaler {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &ConcurrencyScaler{
		monitor:        monitor,
		workerName:     workerName,
		enabled:        enabled,
		min:            min,
		max:            max,
		current:        max, // start at max, scale down when pressure appears
		lastAdjustment: time.Now(),
		now:            time.Now,
	}
}

// GetConcurrency returns the currently allowed concurrency for the pool.
func (s *ConcurrencyScaler) GetConcurrency(staticValue int) int {
	if !s.enabled {
		return staticValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.monitor.Snapshot()
	now := s.now()
	sinceLast := now.Sub(s.lastAdjustment)

	// Stale data is treated as pressure: don't trust an old "all clear".
	zone := snap.Zone
	if snap.Stale {
		zone = ZonePressure
	}

	target := s.current
	switch zone {
	case ZoneCritical:
		target = s.min
	case ZonePressure:
		target = int(math.Max(float64(s.min), float64(s.max)*0.5))
	case ZoneNormal:
		target = s.max
	}

	if target < s.current {
		if zone == ZoneCritical {
			s.current = target
			s.lastAdjustment = now
		} else if sinceLast >= scaleDownCooldown {
			s.current = target
			s.lastAdjustment = now
		}
	} else if target > s.current {
		// Restore gradually: at most +50% per adjustment.
		if sinceLast >= scaleUpCooldown {
			step := int(math.Max(1, float64(s.current)*0.5))
			s.current = int(math.Min(float64(target), float64(s.current+step)))
			s.lastAdjustment = now
		}
	}

	s.current = mathutil.ClampInt(s.current, s.min, s.max)

	concurrencyGauge.WithLabelValues(s.workerName).Set(float64(s.current))
	return s.current
}
