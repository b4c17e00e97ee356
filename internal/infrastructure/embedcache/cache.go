package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/medivault/health-record-vault/internal/core/ports"
)

// Embedder caches vectors by text hash in front of the real embedding
// collaborator. Embeddings are deterministic per deployment, so a cache
// hit is exact; batch calls stay order-preserving and only misses are sent
// downstream in a single batch.
type Embedder struct {
	inner ports.Embedder
	cache *gocache.Cache
}

func New(inner ports.Embedder, ttl, cleanupInterval time.Duration) *Embedder {
	return &Embedder{
		inner: inner,
		cache: gocache.New(ttl, cleanupInterval),
	}
}

func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if vec, ok := e.lookup(text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := e.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			out[missIdx[j]] = vec
			e.store(missTexts[j], vec)
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(text); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(text, vec)
	return vec, nil
}

func (e *Embedder) lookup(text string) ([]float32, bool) {
	if v, found := e.cache.Get(cacheKey(text)); found {
		return v.([]float32), true
	}
	return nil, false
}

func (e *Embedder) store(text string, vec []float32) {
	e.cache.Set(cacheKey(text), vec, gocache.DefaultExpiration)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
