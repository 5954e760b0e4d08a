package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"web-research-assistant/internal/logger"
)

// CachedEmbedder wraps an Embedder with a Redis cache keyed by model version
// and text hash. Cache failures are logged and treated as misses; a dead
// Redis never blocks embedding.
type CachedEmbedder struct {
	inner Embedder
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedEmbedder returns the inner embedder unchanged when rdb is nil, so
// callers can wire the cache unconditionally.
func NewCachedEmbedder(inner Embedder, rdb *redis.Client, ttl time.Duration) Embedder {
	if rdb == nil {
		return inner
	}
	return &CachedEmbedder{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.get(ctx, keys[i]); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedMany(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		c.set(ctx, keys[i], fresh[j])
	}
	return vectors, nil
}

func (c *CachedEmbedder) ModelVersion() string { return c.inner.ModelVersion() }
func (c *CachedEmbedder) Dimension() int       { return c.inner.Dimension() }

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelVersion() + "|" + text))
	return "embed:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Debug("embedding cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) set(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Debug("embedding cache write failed", "error", err)
	}
}
