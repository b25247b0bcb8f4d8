package embcache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/embeddings"
	"github.com/repolens/repolens/pkg/logger"
)

var _ embeddings.Cache = (*Cache)(nil)

// Module provides the embedding cache fx.Module.
var Module = fx.Module("embcache",
	fx.Provide(
		NewRedisClient,
		NewRepository,
		NewCacheFromConfig,
		// The embedding pipeline consumes the cache through its own interface
		fx.Annotate(
			func(c *Cache) embeddings.Cache { return c },
			fx.As(new(embeddings.Cache)),
		),
	),
)

// NewRedisClient connects the hot tier. Returns nil when no Redis address is
// configured; the cache then runs cold-tier only.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *redis.Client {
	if !cfg.Redis.IsConfigured() {
		log.Info("redis not configured, embedding cache runs cold-tier only")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				// The hot tier is an optimization; a dead Redis must not
				// block startup. The breaker keeps it out of the way.
				log.Warn("redis ping failed, hot tier will fail open", logger.Error(err))
				return nil
			}
			log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

// NewCacheFromConfig assembles the two-tier cache from application config.
func NewCacheFromConfig(repo *Repository, rdb *redis.Client, cfg *config.Config, log *slog.Logger) *Cache {
	return NewCache(repo, rdb, Options{
		ModelID:    cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		HotTTL:     cfg.Cache.TTL(),
	}, log)
}
