package rescache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/db"
	"github.com/kailas-cloud/omnidex/internal/domain"
)

// store is the consumer interface for the shared cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Redis is the shared cache driver. Entries are visible to all instances.
type Redis struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewRedis creates a shared result cache on top of a key-value store.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), nil-safe.
func NewRedis(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Redis {
	return &Redis{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Get returns a cached result by key.
func (r *Redis) Get(ctx context.Context, key string) (domain.FusedResult, bool) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to get cached result", zap.String("key", key), zap.Error(err))
		}
		r.inc("miss")
		return domain.FusedResult{}, false
	}

	res, err := decodeResult(data)
	if err != nil {
		r.logger.Warn("Failed to parse cached result", zap.String("key", key), zap.Error(err))
		r.inc("miss")
		return domain.FusedResult{}, false
	}

	r.inc("hit")
	return res, true
}

// Put stores a result with the configured TTL.
func (r *Redis) Put(ctx context.Context, key string, res domain.FusedResult) {
	data, err := encodeResult(res)
	if err != nil {
		r.logger.Warn("Failed to encode result for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.SetWithTTL(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes an entry.
func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.store.Del(ctx, key); err != nil {
		r.logger.Warn("Failed to invalidate cached result", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) inc(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}
