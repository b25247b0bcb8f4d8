package memwatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestMonitor(limitBytes uint64) *memMonitor {
	cfg := DefaultConfig()
	cfg.LimitBytes = limitBytes
	return NewMonitor(cfg, testLogger()).(*memMonitor)
}

func TestMonitor_ZoneClassification(t *testing.T) {
	const limit = 1000

	tests := []struct {
		name string
		rss  uint64
		want Zone
	}{
		{"well below pressure", 100, ZoneNormal},
		{"just below pressure", 799, ZoneNormal},
		{"at pressure threshold", 800, ZonePressure},
		{"between thresholds", 850, ZonePressure},
		{"at critical threshold", 900, ZoneCritical},
		{"above limit", 1200, ZoneCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(limit)
			m.getProcessRSS = func(context.Context) (uint64, error) { return tt.rss, nil }
			m.getSystemMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
				return &mem.VirtualMemoryStat{UsedPercent: 50}, nil
			}

			m.collect()

			snap := m.Snapshot()
			if snap.Zone != tt.want {
				t.Errorf("zone for rss=%d = %q, want %q", tt.rss, snap.Zone, tt.want)
			}
			if snap.RSSBytes != tt.rss {
				t.Errorf("rss = %d, want %d", snap.RSSBytes, tt.rss)
			}
			if snap.Stale {
				t.Error("fresh snapshot marked stale")
			}
		})
	}
}

func TestMonitor_StaleSnapshot(t *testing.T) {
	m := newTestMonitor(1000)
	m.snapshot.CollectedAt = time.Now().Add(-time.Hour)

	if snap := m.Snapshot(); !snap.Stale {
		t.Error("hour-old snapshot not marked stale")
	}
}

func TestMonitor_CollectionFailureKeepsLastValues(t *testing.T) {
	m := newTestMonitor(1000)
	m.getProcessRSS = func(context.Context) (uint64, error) { return 850, nil }
	m.getSystemMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 42}, nil
	}
	m.collect()

	m.getProcessRSS = func(context.Context) (uint64, error) { return 0, errors.New("proc gone") }
	m.getSystemMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("sysfs unreadable")
	}
	m.collect()

	snap := m.Snapshot()
	if snap.RSSBytes != 850 {
		t.Errorf("rss after failed collection = %d, want last known 850", snap.RSSBytes)
	}
	if snap.SystemUsedPercent != 42 {
		t.Errorf("system percent = %v, want last known 42", snap.SystemUsedPercent)
	}
	if snap.Zone != ZonePressure {
		t.Errorf("zone = %q, want pressure (derived from last known rss)", snap.Zone)
	}
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	m := newTestMonitor(1000)
	m.getProcessRSS = func(context.Context) (uint64, error) { return 1, nil }
	m.getSystemMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{}, nil
	}

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestBatchDivisor(t *testing.T) {
	tests := []struct {
		zone Zone
		want int
	}{
		{ZoneNormal, 1},
		{ZonePressure, 2},
		{ZoneCritical, 4},
	}
	for _, tt := range tests {
		if got := BatchDivisor(tt.zone); got != tt.want {
			t.Errorf("BatchDivisor(%q) = %d, want %d", tt.zone, got, tt.want)
		}
	}
}
