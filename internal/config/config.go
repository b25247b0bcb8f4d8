package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Redis hot cache tier
	Redis RedisConfig

	// Embedding provider pipeline
	Embeddings EmbeddingsConfig

	// Embedding cache tiers
	Cache CacheConfig

	// Indexing job orchestration
	Indexing IndexingConfig

	// Index job queue and worker
	Worker WorkerConfig

	// Worker memory monitoring
	Memory MemoryConfig

	// HTTP API protection
	API APIConfig

	// OpenTelemetry tracing
	Otel OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"3600s"` // long-lived SSE streams
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"3600s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"repolens"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"repolens"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the optional hot cache tier connection settings.
// The engine runs fine without Redis; cache lookups then go straight to
// Postgres.
type RedisConfig struct {
	// Addr is the Redis host:port. Empty disables the hot tier.
	Addr        string        `env:"REDIS_ADDR" envDefault:""`
	Password    string        `env:"REDIS_PASSWORD" envDefault:""`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// IsConfigured returns true if a Redis address is set
func (r *RedisConfig) IsConfigured() bool {
	return r.Addr != ""
}

// EmbeddingsConfig holds embedding provider configuration
type EmbeddingsConfig struct {
	// Endpoint is the embedding provider URL. Empty disables provider
	// calls; jobs then index without vectors (lexical search only).
	Endpoint string `env:"EMBEDDING_ENDPOINT" envDefault:""`

	// APIKey is sent as a bearer token when set
	APIKey string `env:"EMBEDDING_API_KEY" envDefault:""`

	// Model identifier included in every request and in cache keys
	Model string `env:"EMBEDDING_MODEL" envDefault:"code-embed-v2"`

	// Dimensions is the vector width requested from the provider
	Dimensions int `env:"EMBEDDING_DIMENSIONS" envDefault:"1024"`

	// MaxConcurrency caps in-flight provider batches process-wide
	MaxConcurrency int64 `env:"EMBED_MAX_CONCURRENCY" envDefault:"4"`

	// MinBatch/MaxBatch bound batch sizes under normal memory conditions
	MinBatch int `env:"EMBED_MIN_BATCH" envDefault:"32"`
	MaxBatch int `env:"EMBED_MAX_BATCH" envDefault:"128"`

	// MaxContentLength truncates longer inputs (code points)
	MaxContentLength int `env:"EMBED_MAX_CONTENT_LENGTH" envDefault:"8000"`

	// MaxRetries bounds retries per batch for transient failures
	MaxRetries     int           `env:"EMBED_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"EMBED_RETRY_BASE_DELAY" envDefault:"500ms"`

	// BatchTimeout bounds one provider exchange
	BatchTimeout time.Duration `env:"EMBED_BATCH_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the HTTP client timeout
	RequestTimeout time.Duration `env:"EMBED_REQUEST_TIMEOUT" envDefault:"60s"`

	// RequestsPerMinute feeds the provider sliding-window limiter
	RequestsPerMinute int `env:"EMBED_REQUESTS_PER_MINUTE" envDefault:"100"`

	// Circuit breaker tuning
	BreakerFailureThreshold int           `env:"EMBED_CB_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerRecoveryTimeout  time.Duration `env:"EMBED_CB_RECOVERY_TIMEOUT" envDefault:"60s"`

	// Disable embeddings network calls (for testing)
	NetworkDisabled bool `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if a provider endpoint is configured
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return e.Endpoint != ""
}

// CacheConfig holds embedding cache retention settings
type CacheConfig struct {
	// TTLHours drives both tiers: Redis entries expire after it, and the
	// cold-tier prune treats rows unused for longer as candidates
	TTLHours int `env:"CACHE_TTL_HOURS" envDefault:"168"`

	// PruneKeepMin is the minimum number of rows prune always retains
	PruneKeepMin int `env:"CACHE_PRUNE_KEEP_MIN" envDefault:"10000"`
}

// TTL returns the cache retention as a Duration
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// IndexingConfig holds job orchestration settings
type IndexingConfig struct {
	// MaxFilesPerChunk caps chunk size by file count
	MaxFilesPerChunk int `env:"INDEX_MAX_FILES_PER_CHUNK" envDefault:"50"`

	// MaxBytesPerChunk caps chunk size by total file bytes
	MaxBytesPerChunk int64 `env:"INDEX_MAX_BYTES_PER_CHUNK" envDefault:"10485760"`

	// MaxConcurrentChunks bounds in-flight file work while a chunk is
	// processed. Chunks themselves advance strictly in order so that
	// checkpoints stay an exact prefix of processing_order.
	MaxConcurrentChunks int `env:"INDEX_MAX_CONCURRENT_CHUNKS" envDefault:"3"`

	// AbortFailureRate and AbortMinSamples govern the failure-rate abort:
	// once at least AbortMinSamples files were attempted and the failed
	// fraction exceeds AbortFailureRate, the job fails fast.
	AbortFailureRate float64 `env:"INDEX_ABORT_FAILURE_RATE" envDefault:"0.5"`
	AbortMinSamples  int     `env:"INDEX_ABORT_MIN_SAMPLES" envDefault:"10"`

	// MaxFileRetries is how many runs may re-attempt a failing file before
	// it is dead-lettered
	MaxFileRetries int `env:"INDEX_MAX_FILE_RETRIES" envDefault:"3"`

	// MaxFileSizeBytes skips larger files at discovery (0 = no limit)
	MaxFileSizeBytes int64 `env:"INDEX_MAX_FILE_SIZE_BYTES" envDefault:"1048576"`
}

// WorkerConfig holds queue worker settings
type WorkerConfig struct {
	// PollInterval is how often the worker polls for claimable jobs
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`

	// Concurrency is how many index jobs one process runs at once; the
	// memory scaler may lower the effective value
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// MaxAttempts is how often a queued job is attempted before it is
	// dead-lettered
	MaxAttempts int `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`

	// StaleThresholdMinutes is the visibility timeout: processing claims
	// older than this are returned to pending
	StaleThresholdMinutes int `env:"WORKER_STALE_THRESHOLD_MINUTES" envDefault:"10"`
}

// MemoryConfig holds worker memory monitoring settings
type MemoryConfig struct {
	// WorkerMaxMemoryMB is the per-process memory budget
	WorkerMaxMemoryMB int `env:"WORKER_MAX_MEMORY_MB" envDefault:"2048"`

	// PressurePercent/CriticalPercent are zone boundaries as a percentage
	// of the budget
	PressurePercent float64 `env:"MEMORY_PRESSURE_PCT" envDefault:"80"`
	CriticalPercent float64 `env:"MEMORY_CRITICAL_PCT" envDefault:"90"`

	// CollectionInterval is the sampling period
	CollectionInterval time.Duration `env:"MEMORY_COLLECTION_INTERVAL" envDefault:"10s"`

	// ScaleConcurrency enables memory-adaptive worker concurrency
	ScaleConcurrency bool `env:"MEMORY_SCALE_CONCURRENCY" envDefault:"true"`
}

// APIConfig holds HTTP API protection settings
type APIConfig struct {
	// RateLimitRPS and RateLimitBurst configure the per-client-IP token
	// bucket on the control surface; RPS 0 disables it
	RateLimitRPS   float64 `env:"API_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"API_RATE_LIMIT_BURST" envDefault:"40"`
}

// Validate checks cross-field constraints that env tags cannot express
func (c *Config) Validate() error {
	if c.Indexing.MaxFilesPerChunk < 1 {
		return fmt.Errorf("INDEX_MAX_FILES_PER_CHUNK must be at least 1, got %d", c.Indexing.MaxFilesPerChunk)
	}
	if c.Indexing.MaxBytesPerChunk < 1 {
		return fmt.Errorf("INDEX_MAX_BYTES_PER_CHUNK must be at least 1, got %d", c.Indexing.MaxBytesPerChunk)
	}
	if c.Indexing.AbortFailureRate <= 0 || c.Indexing.AbortFailureRate > 1 {
		return fmt.Errorf("INDEX_ABORT_FAILURE_RATE must be in (0, 1], got %v", c.Indexing.AbortFailureRate)
	}
	if c.Memory.PressurePercent >= c.Memory.CriticalPercent {
		return fmt.Errorf("MEMORY_PRESSURE_PCT (%v) must be below MEMORY_CRITICAL_PCT (%v)",
			c.Memory.PressurePercent, c.Memory.CriticalPercent)
	}
	if c.Embeddings.Dimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be at least 1, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.MinBatch < 1 || c.Embeddings.MaxBatch < c.Embeddings.MinBatch {
		return fmt.Errorf("embed batch bounds invalid: min %d, max %d",
			c.Embeddings.MinBatch, c.Embeddings.MaxBatch)
	}
	return nil
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Bool("embeddings_enabled", cfg.Embeddings.IsEnabled()),
		slog.Bool("redis_enabled", cfg.Redis.IsConfigured()),
	)

	return cfg, nil
}
