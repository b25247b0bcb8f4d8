package memwatch

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/repolens/repolens/internal/config"
)

// Module provides the memory monitor fx.Module.
var Module = fx.Module("memwatch",
	fx.Provide(NewMonitorFromConfig),
)

// NewMonitorFromConfig builds the monitor from application config and ties
// sampling to the fx lifecycle.
func NewMonitorFromConfig(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) Monitor {
	m := NewMonitor(&Config{
		LimitBytes:         uint64(cfg.Memory.WorkerMaxMemoryMB) << 20,
		PressurePercent:    cfg.Memory.PressurePercent,
		CriticalPercent:    cfg.Memory.CriticalPercent,
		CollectionInterval: cfg.Memory.CollectionInterval,
	}, log)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start() },
		OnStop:  func(context.Context) error { return m.Stop() },
	})
	return m
}
