// Package embcache provides caching decorators around a domain.Embedder.
// Two layers exist: an in-process expirable LRU for hot query texts and a
// shared KV store for document embeddings. Cache keys hash the model name
// together with the input text, so a model change invalidates everything.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/db"
	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/metrics"
)

// store is the consumer interface for the KV cache layer.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KVCachedEmbedder caches embeddings in a shared key-value store.
type KVCachedEmbedder struct {
	inner     domain.Embedder
	store     store
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

var _ domain.Embedder = (*KVCachedEmbedder)(nil)

// NewKV creates a KV caching decorator. Entries expire after ttl; a
// non-positive ttl stores them without expiration.
func NewKV(inner domain.Embedder, s store, keyPrefix string, ttl time.Duration, logger *zap.Logger) *KVCachedEmbedder {
	return &KVCachedEmbedder{
		inner:     inner,
		store:     s,
		keyPrefix: keyPrefix + "emb_cache:",
		ttl:       ttl,
		logger:    logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder. On a miss
// the result is stored best-effort; cache write failures are logged only.
func (c *KVCachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("kv", "hit").Inc()
		return domain.EmbeddingResult{Vector: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("kv", "miss").Inc()

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	c.putToCache(ctx, key, result.Vector)
	return result, nil
}

// Available delegates to the inner embedder.
func (c *KVCachedEmbedder) Available() bool { return c.inner.Available() }

// ModelName delegates to the inner embedder.
func (c *KVCachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *KVCachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *KVCachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *KVCachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, vectorToBytes(vec), c.ttl)
	} else {
		err = c.store.Set(ctx, key, vectorToBytes(vec))
	}
	if err != nil {
		c.logger.Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
