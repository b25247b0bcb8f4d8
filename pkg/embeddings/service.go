package embeddings

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/breaker"
	"github.com/repolens/repolens/pkg/logger"
	"github.com/repolens/repolens/pkg/memwatch"
	"github.com/repolens/repolens/pkg/ratelimit"
	"github.com/repolens/repolens/pkg/tracing"
)

// Cache is the write-through cache surface the service consults before
// calling the provider. Implementations own their tiering; lookup failures
// surface as misses, never as errors.
type Cache interface {
	// Key derives the content-addressed cache key for a text.
	Key(text string) string
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vec []float32)
}

// Sampler reports current memory pressure. Satisfied by memwatch.Monitor.
type Sampler interface {
	Snapshot() memwatch.Snapshot
}

// Config controls the provider pipeline.
type Config struct {
	Model      string
	Dimensions int

	// MinBatch/MaxBatch bound batch sizes under normal memory conditions;
	// pressure shrinks below MinBatch down to 1.
	MinBatch int
	MaxBatch int

	// MaxContentLength truncates longer inputs (code points, rune-safe).
	MaxContentLength int

	// MaxRetries bounds retries per batch for transient failures.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// BatchTimeout bounds one provider exchange.
	BatchTimeout time.Duration

	// MaxConcurrency is the process-wide cap on in-flight provider batches.
	MaxConcurrency int64

	// RequestsPerMinute feeds the sliding-window limiter; 0 disables it.
	RequestsPerMinute int

	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "code-embed-v2"
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.MinBatch <= 0 {
		c.MinBatch = 32
	}
	if c.MaxBatch < c.MinBatch {
		c.MaxBatch = 128
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 8000
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.BreakerFailureThreshold <= 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerRecoveryTimeout <= 0 {
		c.BreakerRecoveryTimeout = 60 * time.Second
	}
	return c
}

// Service is the embedding pipeline shared by all workers in the process:
// one semaphore, one rate limiter and one breaker guard the provider
// endpoint regardless of how many jobs run concurrently.
type Service struct {
	client  Client
	cache   Cache
	mem     Sampler
	cfg     Config
	log     *slog.Logger
	sem     *semaphore.Weighted
	limiter *ratelimit.SlidingWindow
	cb      *breaker.Breaker
	enabled bool

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	// sleep is the retry backoff; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the pipeline around a client. cache and mem are
// optional; pass nil to skip cache-first lookups or memory-adaptive batch
// sizing.
func NewService(client Client, cache Cache, mem Sampler, cfg Config, log *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	scoped := log.With(logger.Scope("embeddings"))

	_, noop := client.(*NoopClient)
	s := &Service{
		client:  client,
		cache:   cache,
		mem:     mem,
		cfg:     cfg,
		log:     scoped,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter: ratelimit.New(cfg.RequestsPerMinute, time.Minute),
		enabled: client != nil && !noop,
		sleep:   sleepCtx,
	}
	s.cb = breaker.New(breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		OnStateChange: func(from, to breaker.State) {
			scoped.Warn("provider breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			breakerStateGauge.Set(breakerOrdinal(to))
		},
	})
	return s
}

// Enabled reports whether a real provider is configured.
func (s *Service) Enabled() bool {
	return s.enabled
}

// BreakerState exposes the provider breaker for monitoring.
func (s *Service) BreakerState() breaker.State {
	return s.cb.State()
}

// CacheCounters reports in-process cache lookups since startup.
func (s *Service) CacheCounters() (hits, misses int64) {
	return s.cacheHits.Load(), s.cacheMisses.Load()
}

// Model returns the configured model identifier.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Dimensions returns the configured vector width.
func (s *Service) Dimensions() int {
	return s.cfg.Dimensions
}

// Embed returns one vector per input text, preserving order. Inputs are
// truncated to the configured length, assembled into memory-adaptive
// batches, and sent through the semaphore, rate limiter and breaker.
//
// A batch that fails after its retries leaves nil holes at its positions and
// processing continues with the remaining batches; the first batch error is
// returned alongside the partial result. Context cancellation aborts
// immediately.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if s.mem != nil {
		// Over the hard memory budget nothing should be buffered at all.
		snap := s.mem.Snapshot()
		if snap.Zone == memwatch.ZoneCritical && snap.UsedPercent >= 100 {
			return nil, apperror.ErrResourceExhausted
		}
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = s.truncate(t)
	}

	out := make([][]float32, len(texts))
	var firstErr error

	for start := 0; start < len(prepared); {
		size := s.batchSize()
		end := start + size
		if end > len(prepared) {
			end = len(prepared)
		}

		vecs, err := s.embedBatch(ctx, prepared[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
		} else {
			copy(out[start:end], vecs)
		}
		start = end
	}

	return out, firstErr
}

// EmbedWithCache is Embed behind the cache: inputs found in the cache are
// returned without a provider call, the uncached remainder is deduplicated,
// embedded and written through, and results merge back in input order.
// Cached texts therefore survive provider outages.
func (s *Service) EmbedWithCache(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if s.cache == nil {
		return s.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missKeys []string
	missIndex := make(map[string][]int)

	for i, t := range texts {
		key := s.cache.Key(t)
		if vec, ok := s.cache.Get(ctx, key); ok {
			out[i] = vec
			cacheHitsTotal.Inc()
			s.cacheHits.Add(1)
			continue
		}
		cacheMissesTotal.Inc()
		s.cacheMisses.Add(1)
		if _, seen := missIndex[key]; !seen {
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, t)
		}
		missIndex[key] = append(missIndex[key], i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := s.Embed(ctx, missTexts)
	for j, key := range missKeys {
		var vec []float32
		if j < len(vecs) {
			vec = vecs[j]
		}
		if vec == nil {
			continue
		}
		s.cache.Put(ctx, key, vec)
		for _, i := range missIndex[key] {
			out[i] = vec
		}
	}
	return out, err
}

// embedBatch runs one batch through the breaker, limiter and retry loop.
// The batch counts one breaker failure if and only if it ultimately fails
// for a non-throttling reason.
func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	ctx, span := tracing.Start(ctx, "embeddings.batch",
		attribute.Int("repolens.batch.size", len(batch)),
		attribute.String("repolens.model", s.cfg.Model),
	)
	defer span.End()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		if err := s.cb.Allow(); err != nil {
			providerRequestsTotal.WithLabelValues("circuit_open").Inc()
			return nil, apperror.ErrCircuitOpen
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
		startedAt := time.Now()
		vecs, err := s.client.Embed(callCtx, batch, s.cfg.Model, s.cfg.Dimensions)
		cancel()

		providerLatencySeconds.Observe(time.Since(startedAt).Seconds())
		batchSizeObserved.Observe(float64(len(batch)))

		if err == nil {
			s.cb.RecordSuccess()
			providerRequestsTotal.WithLabelValues("success").Inc()
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch apperror.CodeOf(err) {
		case apperror.CodeThrottled:
			s.cb.RecordThrottled()
			providerRequestsTotal.WithLabelValues("throttled").Inc()
			lastErr = err
		case apperror.CodeAuthorization:
			// Permanent: no retry, but the endpoint is unusable, so the
			// breaker counts it and eventually spares the remaining files
			// the round trip.
			s.cb.RecordFailure()
			providerRequestsTotal.WithLabelValues("auth_denied").Inc()
			return nil, err
		default:
			providerRequestsTotal.WithLabelValues("transport_error").Inc()
			lastErr = err
		}

		s.log.Warn("embedding batch failed",
			slog.Int("attempt", attempt),
			slog.Int("batch_size", len(batch)),
			logger.Error(err))
	}

	// Retries exhausted. Throttling is pushback, not ill health; only
	// non-throttling outcomes feed the breaker.
	if !apperror.IsCode(lastErr, apperror.CodeThrottled) {
		s.cb.RecordFailure()
	}
	providerRequestsTotal.WithLabelValues("exhausted").Inc()
	return nil, lastErr
}

// batchSize returns the next batch size given current memory pressure.
func (s *Service) batchSize() int {
	size := s.cfg.MaxBatch
	zone := memwatch.ZoneNormal
	if s.mem != nil {
		snap := s.mem.Snapshot()
		zone = snap.Zone
		if snap.Stale {
			zone = memwatch.ZonePressure
		}
	}
	size /= memwatch.BatchDivisor(zone)
	if zone == memwatch.ZoneNormal && size < s.cfg.MinBatch {
		size = s.cfg.MinBatch
	}
	if size < 1 {
		size = 1
	}
	return size
}

// truncate cuts text to MaxContentLength code points without splitting a
// rune. Documented pipeline behavior, not an error.
func (s *Service) truncate(text string) string {
	max := s.cfg.MaxContentLength
	count := 0
	for i := range text {
		if count == max {
			truncatedTotal.Inc()
			return text[:i]
		}
		count++
	}
	return text
}

func (s *Service) backoff(attempt int) time.Duration {
	d := float64(s.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	return time.Duration(d)
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

func breakerOrdinal(st breaker.State) float64 {
	switch st {
	case breaker.StateOpen:
		return 1
	case breaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
