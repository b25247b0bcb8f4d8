// Package memwatch samples process memory usage and classifies it into
// pressure zones that drive adaptive batch sizing and worker concurrency.
package memwatch

import "time"

// Zone classifies memory usage relative to the configured process limit.
type Zone string

const (
	// ZoneNormal: below the pressure threshold, run at full tilt.
	ZoneNormal Zone = "normal"
	// ZonePressure: shrink batches and stop scaling up.
	ZonePressure Zone = "pressure"
	// ZoneCritical: minimum concurrency, quarter-size batches.
	ZoneCritical Zone = "critical"
)

// Snapshot is one observation of process and system memory.
type Snapshot struct {
	// RSSBytes is the process resident set size.
	RSSBytes uint64 `json:"rss_bytes"`
	// LimitBytes is the configured process memory budget.
	LimitBytes uint64 `json:"limit_bytes"`
	// UsedPercent is RSSBytes relative to LimitBytes.
	UsedPercent float64 `json:"used_percent"`
	// SystemUsedPercent is host-wide memory utilization.
	SystemUsedPercent float64 `json:"system_used_percent"`
	Zone              Zone    `json:"zone"`
	CollectedAt       time.Time `json:"collected_at"`
	// Stale marks a snapshot older than the staleness threshold; consumers
	// should treat stale data pessimistically.
	Stale bool `json:"stale"`
}

// Config controls sampling cadence and zone thresholds.
type Config struct {
	// LimitBytes is the process memory budget the zones are computed against.
	LimitBytes uint64
	// PressurePercent is the usage percentage entering the pressure zone
	// (default 80).
	PressurePercent float64
	// CriticalPercent is the usage percentage entering the critical zone
	// (default 90).
	CriticalPercent float64
	// CollectionInterval is how often to sample (default 10s).
	CollectionInterval time.Duration
	// CollectionTimeout bounds a single collection (default 5s).
	CollectionTimeout time.Duration
	// StalenessThreshold marks snapshots older than this as stale
	// (default 3x CollectionInterval).
	StalenessThreshold time.Duration
}

// DefaultConfig returns a Config with production defaults and a 2 GiB
// process budget.
func DefaultConfig() *Config {
	return &Config{
		LimitBytes:         2048 << 20,
		PressurePercent:    80,
		CriticalPercent:    90,
		CollectionInterval: 10 * time.Second,
		CollectionTimeout:  5 * time.Second,
		StalenessThreshold: 30 * time.Second,
	}
}

// Monitor is the sampling surface consumed by workers and the embedding
// pipeline.
type Monitor interface {
	Start() error
	Stop() error
	// Snapshot returns the last observation; it never blocks on collection.
	Snapshot() Snapshot
}

// BatchDivisor returns the factor by which embedding batch sizes shrink in
// the given zone: 1 under normal, 2 under pressure, 4 under critical.
func BatchDivisor(z Zone) int {
	switch z {
	case ZoneCritical:
		return 4
	case ZonePressure:
		return 2
	default:
		return 1
	}
}

// zoneFor classifies a usage percentage against the configured thresholds.
func (c *Config) zoneFor(usedPercent float64) Zone {
	switch {
	case usedPercent >= c.CriticalPercent:
		return ZoneCritical
	case usedPercent >= c.PressurePercent:
		return ZonePressure
	default:
		return ZoneNormal
	}
}
