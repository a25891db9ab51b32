package rescache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/omnidex/internal/domain"
)

const (
	numCounters = 1e6 // counters for the admission policy
	maxCost     = 1e7 // ~10MB of estimated result weight
	bufferItems = 64
)

// Ristretto is the in-process cache driver.
type Ristretto struct {
	cache      *ristretto.Cache
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
}

// NewRistretto creates an in-process result cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), nil-safe.
func NewRistretto(ttl time.Duration, cacheTotal *prometheus.CounterVec) (*Ristretto, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{cache: cache, ttl: ttl, cacheTotal: cacheTotal}, nil
}

// Get returns a cached result by key.
func (r *Ristretto) Get(_ context.Context, key string) (domain.FusedResult, bool) {
	value, found := r.cache.Get(key)
	if !found {
		r.inc("miss")
		return domain.FusedResult{}, false
	}
	res, ok := value.(domain.FusedResult)
	if !ok {
		r.inc("miss")
		return domain.FusedResult{}, false
	}
	r.inc("hit")
	return res, true
}

// Put stores a result with the configured TTL.
func (r *Ristretto) Put(_ context.Context, key string, res domain.FusedResult) {
	r.cache.SetWithTTL(key, res, estimateCost(res), r.ttl)
}

// Invalidate removes an entry.
func (r *Ristretto) Invalidate(_ context.Context, key string) {
	r.cache.Del(key)
}

// Wait blocks until pending writes are applied.
func (r *Ristretto) Wait() {
	r.cache.Wait()
}

// Close releases cache resources.
func (r *Ristretto) Close() {
	r.cache.Close()
}

func (r *Ristretto) inc(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}

func estimateCost(res domain.FusedResult) int64 {
	cost := int64(200)
	for i := range res.Items {
		item := &res.Items[i]
		cost += int64(len(item.ID()) + len(item.Title()) + len(item.Snippet()) + len(item.Source()) + 16)
	}
	return cost
}
