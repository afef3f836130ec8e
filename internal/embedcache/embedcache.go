// Package embedcache fronts a provider's embedding calls with an expirable
// LRU keyed by (model, content hash). Indexing and retrieval hit the same
// texts repeatedly; there is no reason to pay for the same vector twice.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Embedder is the narrow slice of the ai provider this package wraps.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func Wrap(next Embedder, size int, ttl time.Duration) Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachedEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *cachedEmbedder) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	key := cacheKey(model, text)
	if cached, ok := c.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("model", model))
		return cloneVector(cached), nil
	}
	vec, err := c.next.Embed(ctx, model, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
