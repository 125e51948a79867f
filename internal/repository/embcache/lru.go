package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/metrics"
)

// LRUEmbedder keeps recent embeddings in an in-process expirable LRU. Sized
// for query texts, where the same search is often repeated within minutes.
type LRUEmbedder struct {
	inner domain.Embedder
	cache *expirable.LRU[string, []float32]
}

var _ domain.Embedder = (*LRUEmbedder)(nil)

// NewLRU creates an LRU caching decorator. Returns the inner embedder
// unchanged when size or ttl make caching a no-op.
func NewLRU(inner domain.Embedder, size int, ttl time.Duration) domain.Embedder {
	if size <= 0 || ttl <= 0 {
		return inner
	}
	return &LRUEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Embed returns a cached vector or calls the inner embedder.
func (l *LRUEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := l.cacheKey(text)
	if vec, ok := l.cache.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("lru", "hit").Inc()
		return domain.EmbeddingResult{Vector: cloneVector(vec)}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("lru", "miss").Inc()

	res, err := l.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	l.cache.Add(key, cloneVector(res.Vector))
	return res, nil
}

// Available delegates to the inner embedder.
func (l *LRUEmbedder) Available() bool { return l.inner.Available() }

// ModelName delegates to the inner embedder.
func (l *LRUEmbedder) ModelName() string { return l.inner.ModelName() }

func (l *LRUEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(l.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func cloneVector(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
