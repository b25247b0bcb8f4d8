package memwatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/repolens/repolens/pkg/logger"
)

type memMonitor struct {
	cfg *Config
	log *slog.Logger
	mu  sync.RWMutex

	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool

	snapshot       Snapshot
	consecFailures int

	// Collection functions for mocking
	getProcessRSS func(context.Context) (uint64, error)
	getSystemMem  func(context.Context) (*mem.VirtualMemoryStat, error)
}

// NewMonitor creates a process memory monitor.
// cfg: thresholds and cadence (uses DefaultConfig if nil).
// log: logger for zone transitions and collection failures.
func NewMonitor(cfg *Config, log *slog.Logger) Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CollectionInterval <= 0 {
		cfg.CollectionInterval = 10 * time.Second
	}
	if cfg.CollectionTimeout <= 0 {
		cfg.CollectionTimeout = 5 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 3 * cfg.CollectionInterval
	}
	if cfg.PressurePercent <= 0 {
		cfg.PressurePercent = 80
	}
	if cfg.CriticalPercent <= cfg.PressurePercent {
		cfg.CriticalPercent = 90
	}

	return &memMonitor{
		cfg: cfg,
		log: log.With(logger.Scope("memwatch")),
		snapshot: Snapshot{
			LimitBytes: cfg.LimitBytes,
			Zone:       ZoneNormal,
		},
		getProcessRSS: collectProcessRSS,
		getSystemMem:  mem.VirtualMemoryWithContext,
	}
}

func (m *memMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.ticker = time.NewTicker(m.cfg.CollectionInterval)

	// Initial collection so the first Snapshot call sees real data.
	go func() {
		m.collect()
		for {
			select {
			case <-m.ticker.C:
				m.collect()
			case <-m.stopCh:
				return
			}
		}
	}()

	m.log.Info("memory monitor started",
		slog.Duration("interval", m.cfg.CollectionInterval),
		slog.Uint64("limit_bytes", m.cfg.LimitBytes))
	return nil
}

func (m *memMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
	m.log.Info("memory monitor stopped")
	return nil
}

func (m *memMonitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	if time.Since(snap.CollectedAt) > m.cfg.StalenessThreshold {
		snap.Stale = true
	}
	return snap
}

func (m *memMonitor) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CollectionTimeout)
	defer cancel()

	success := true
	var (
		rss        uint64
		sysPercent float64
	)

	if v, err := m.getProcessRSS(ctx); err == nil {
		rss = v
	} else {
		success = false
		m.log.Error("failed to collect process rss", logger.Error(err))
	}

	if v, err := m.getSystemMem(ctx); err == nil {
		sysPercent = v.UsedPercent
	} else {
		success = false
		m.log.Error("failed to collect system memory", logger.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !success {
		m.consecFailures++
		if m.consecFailures >= 3 {
			m.log.Error("persistent memory collection failures", slog.Int("failures", m.consecFailures))
		}
		// Keep the last known values for whatever we could not fetch.
		if rss == 0 {
			rss = m.snapshot.RSSBytes
		}
		if sysPercent == 0 {
			sysPercent = m.snapshot.SystemUsedPercent
		}
	} else {
		m.consecFailures = 0
	}

	usedPercent := 0.0
	if m.cfg.LimitBytes > 0 {
		usedPercent = float64(rss) / float64(m.cfg.LimitBytes) * 100.0
	}
	newZone := m.cfg.zoneFor(usedPercent)

	if newZone != m.snapshot.Zone {
		m.log.Warn("memory zone transition",
			slog.String("from", string(m.snapshot.Zone)),
			slog.String("to", string(newZone)),
			slog.Float64("used_percent", usedPercent),
			slog.Uint64("rss_bytes", rss))
	}

	m.snapshot = Snapshot{
		RSSBytes:          rss,
		LimitBytes:        m.cfg.LimitBytes,
		UsedPercent:       usedPercent,
		SystemUsedPercent: sysPercent,
		Zone:              newZone,
		CollectedAt:       time.Now(),
	}

	rssGauge.Set(float64(rss))
	usedPercentGauge.Set(usedPercent)
	zoneGauge.Set(zoneOrdinal(newZone))
}

// collectProcessRSS reads the current process resident set size.
func collectProcessRSS(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

func zoneOrdinal(z Zone) float64 {
	switch z {
	case ZoneCritical:
		return 2
	case ZonePressure:
		return 1
	default:
		return 0
	}
}
