package rescache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

var cacheKeyPrefix = domain.KeyPrefix + "rescache:"

// Cache is a best-effort store for fused retrieval results. Implementations
// never surface errors: a broken cache degrades to a miss.
type Cache interface {
	Get(ctx context.Context, key string) (domain.FusedResult, bool)
	Put(ctx context.Context, key string, res domain.FusedResult)
	Invalidate(ctx context.Context, key string)
}

// Key derives a cache key from the query coordinates. Identical queries with
// the same intent and limit share an entry across conversations.
func Key(in intent.Intent, text string, limit int) string {
	h := sha256.Sum256([]byte(string(in) + "|" + text + "|" + strconv.Itoa(limit)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])[:32]
}

// Nop is a disabled cache.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (domain.FusedResult, bool) {
	return domain.FusedResult{}, false
}

// Put discards the result.
func (Nop) Put(context.Context, string, domain.FusedResult) {}

// Invalidate does nothing.
func (Nop) Invalidate(context.Context, string) {}
