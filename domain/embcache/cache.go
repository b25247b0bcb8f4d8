// Package embcache is the two-tier embedding cache: a Redis hot tier in
// front of the authoritative idx.embedding_cache table. Keys are
// content-addressed (normalized content + model id), so identical files
// across repositories share entries. Callers never see the tiering; every
// hot-tier problem fails open to the cold tier.
package embcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/repolens/repolens/pkg/logger"
)

const (
	// hotKeyPrefix namespaces cache entries in Redis.
	hotKeyPrefix = "emb:"

	// envelopeVersion tags the hot-tier value encoding.
	envelopeVersion = byte(1)
)

// store is the cold tier surface the cache writes through to.
// Implemented by Repository.
type store interface {
	Lookup(ctx context.Context, hash string) ([]float32, bool, error)
	GetOrCreateCacheEntry(ctx context.Context, hash string, vec []float32, modelID string, dimensions int) (*Entry, bool, error)
}

// Options configures the two-tier cache.
type Options struct {
	// ModelID is baked into every derived key.
	ModelID string
	// Dimensions is the expected vector width; mismatched entries read as
	// misses.
	Dimensions int
	// HotTTL is the Redis entry lifetime.
	HotTTL time.Duration
}

// Cache fronts the embedding pipeline's vector lookups. Reads try Redis,
// then Postgres, promoting cold hits; writes go to both tiers and a failure
// in one is non-fatal while the other succeeds.
type Cache struct {
	cold  store
	rdb   *redis.Client // nil when the hot tier is not configured
	cb    *gobreaker.CircuitBreaker
	model string
	dims  int
	ttl   time.Duration
	log   *slog.Logger
}

// NewCache creates the cache. rdb may be nil; the cache then runs cold-tier
// only.
func NewCache(cold store, rdb *redis.Client, opts Options, log *slog.Logger) *Cache {
	if opts.HotTTL <= 0 {
		opts.HotTTL = 168 * time.Hour
	}
	scoped := log.With(logger.Scope("embcache"))

	c := &Cache{
		cold:  cold,
		rdb:   rdb,
		model: opts.ModelID,
		dims:  opts.Dimensions,
		ttl:   opts.HotTTL,
		log:   scoped,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embcache-redis",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			scoped.Warn("hot tier breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			hotBreakerGauge.Set(breakerOrdinal(to))
		},
	})
	return c
}

// Key derives the content-addressed cache key for a text under the
// configured model.
func (c *Cache) Key(text string) string {
	return Key(text, c.model)
}

// Get returns the cached vector for a key. Hot hits come back directly; on a
// cold hit the entry is promoted to the hot tier. Tier failures read as
// misses.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.hotGet(ctx, key); ok {
		hotHitsTotal.Inc()
		return vec, true
	}

	vec, ok, err := c.cold.Lookup(ctx, key)
	if err != nil {
		c.log.Warn("cold tier lookup failed, treating as miss", logger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	coldHitsTotal.Inc()
	c.hotSet(ctx, key, vec)
	return vec, true
}

// Put stores a vector in both tiers. Empty vectors (a disabled provider) are
// never cached.
func (c *Cache) Put(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}

	c.hotSet(ctx, key, vec)

	if _, _, err := c.cold.GetOrCreateCacheEntry(ctx, key, vec, c.model, len(vec)); err != nil {
		c.log.Warn("cold tier write failed", logger.Error(err), slog.String("key", key))
	}
}

// Ping reports hot tier connectivity for readiness checks. A cache without
// Redis configured is always ready.
func (c *Cache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// HotEnabled reports whether a Redis tier is configured.
func (c *Cache) HotEnabled() bool {
	return c.rdb != nil
}

// BreakerState returns the hot tier breaker state for monitoring, or
// "disabled" without a Redis tier.
func (c *Cache) BreakerState() string {
	if c.rdb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}

func (c *Cache) hotGet(ctx context.Context, key string) ([]float32, bool) {
	if c.rdb == nil {
		return nil, false
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		b, err := c.rdb.Get(ctx, hotKeyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is a healthy response.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		hotErrorsTotal.Inc()
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.Debug("hot tier get failed", logger.Error(err))
		}
		return nil, false
	}
	if res == nil {
		return nil, false
	}

	vec, err := decodeEnvelope(res.([]byte), c.model, c.dims)
	if err != nil {
		// Stale encoding or a different model's entry under this key; let
		// the cold tier decide.
		c.log.Debug("hot tier envelope rejected", logger.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Cache) hotSet(ctx context.Context, key string, vec []float32) {
	if c.rdb == nil {
		return
	}

	payload := encodeEnvelope(c.model, vec)
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, hotKeyPrefix+key, payload, c.ttl).Err()
	})
	if err != nil {
		hotErrorsTotal.Inc()
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.Debug("hot tier set failed", logger.Error(err))
		}
	}
}

// encodeEnvelope packs a vector with its model id for the hot tier:
// version byte, model id (length-prefixed), dimension count, then raw
// little-endian float32s.
func encodeEnvelope(modelID string, vec []float32) []byte {
	buf := make([]byte, 0, 1+2+len(modelID)+2+4*len(vec))
	buf = append(buf, envelopeVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(modelID)))
	buf = append(buf, modelID...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(vec)))
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

// decodeEnvelope unpacks a hot-tier value, rejecting entries written under a
// different encoding version, model or vector width.
func decodeEnvelope(b []byte, wantModel string, wantDims int) ([]float32, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("envelope too short: %d bytes", len(b))
	}
	if b[0] != envelopeVersion {
		return nil, fmt.Errorf("unknown envelope version %d", b[0])
	}
	b = b[1:]

	modelLen := int(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if len(b) < modelLen+2 {
		return nil, fmt.Errorf("envelope truncated in model id")
	}
	model := string(b[:modelLen])
	if model != wantModel {
		return nil, fmt.Errorf("envelope model %q does not match %q", model, wantModel)
	}
	b = b[modelLen:]

	dims := int(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if len(b) != 4*dims {
		return nil, fmt.Errorf("envelope payload is %d bytes, want %d", len(b), 4*dims)
	}
	if wantDims > 0 && dims != wantDims {
		return nil, fmt.Errorf("envelope width %d does not match %d", dims, wantDims)
	}

	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}

func breakerOrdinal(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
