package embedding

import (
	"context"

	"github.com/ricesearch/logscout/internal/pkg/hash"
)

// CachedEmbedder consults a cache before calling the provider.
// Failed embeddings are never cached.
type CachedEmbedder struct {
	next  Embedder
	cache Cache
	model string
}

// NewCachedEmbedder wraps next. model namespaces the cache keys.
func NewCachedEmbedder(next Embedder, cache Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, model: model}
}

// Embed returns a cached vector or asks the wrapped embedder.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hash.EmbeddingKey(e.model, text)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec, nil
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		e.cache.Set(ctx, key, vec)
	}
	return vec, nil
}
