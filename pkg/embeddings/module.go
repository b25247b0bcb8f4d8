package embeddings

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/embeddings/remote"
	"github.com/repolens/repolens/pkg/memwatch"
)

// NewNoopService creates a service with a noop client (for testing).
func NewNoopService(log *slog.Logger) *Service {
	return NewService(NewNoopClient(), nil, nil, Config{}, log)
}

// Module provides the embeddings fx.Module.
var Module = fx.Module("embeddings",
	fx.Provide(NewServiceFromConfig),
)

// NewServiceFromConfig builds the pipeline from application config. With an
// endpoint configured it talks to the remote provider; without one it falls
// back to the noop client and documents index without vectors.
func NewServiceFromConfig(cfg *config.Config, cache Cache, mem memwatch.Monitor, log *slog.Logger) (*Service, error) {
	embCfg := cfg.Embeddings

	var client Client = NewNoopClient()
	if embCfg.IsEnabled() {
		rc, err := remote.NewClient(remote.Config{
			Endpoint: embCfg.Endpoint,
			APIKey:   embCfg.APIKey,
			Timeout:  embCfg.RequestTimeout,
		}, remote.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		client = rc
		log.Info("remote embeddings client initialized",
			slog.String("endpoint", embCfg.Endpoint),
			slog.String("model", embCfg.Model),
			slog.Int("dimensions", embCfg.Dimensions),
		)
	} else {
		log.Info("embeddings service disabled - no endpoint configured")
	}

	return NewService(client, cache, mem, Config{
		Model:                   embCfg.Model,
		Dimensions:              embCfg.Dimensions,
		MinBatch:                embCfg.MinBatch,
		MaxBatch:                embCfg.MaxBatch,
		MaxContentLength:        embCfg.MaxContentLength,
		MaxRetries:              embCfg.MaxRetries,
		RetryBaseDelay:          embCfg.RetryBaseDelay,
		BatchTimeout:            embCfg.BatchTimeout,
		MaxConcurrency:          embCfg.MaxConcurrency,
		RequestsPerMinute:       embCfg.RequestsPerMinute,
		BreakerFailureThreshold: embCfg.BreakerFailureThreshold,
		BreakerRecoveryTimeout:  embCfg.BreakerRecoveryTimeout,
	}, log), nil
}
