package catalog

import (
	"context"

	"github.com/ricesearch/logscout/internal/embedding"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/pkg/security"
)

// DefaultTopK is the number of candidate sources returned by default.
const DefaultTopK = security.DefaultTopK

// Resolver narrows a question to candidate index patterns.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	catalog  *Catalog
	embedder embedding.Embedder
	index    VectorIndex
	log      *logger.Logger
}

// NewResolver creates a resolver. A nil index selects the in-memory index.
func NewResolver(c *Catalog, embedder embedding.Embedder, index VectorIndex, log *logger.Logger) *Resolver {
	if index == nil {
		index = NewMemoryIndex(c)
	}
	return &Resolver{
		catalog:  c,
		embedder: embedder,
		index:    index,
		log:      log,
	}
}

// Catalog returns the catalog the resolver searches.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns at most topK index patterns, best first, ties in catalog
// order. An empty result means no index could be resolved.
func (r *Resolver) Resolve(ctx context.Context, question string, topK int) ([]string, error) {
	matches, err := r.ResolveScored(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	patterns := make([]string, len(matches))
	for i, m := range matches {
		patterns[i] = m.Pattern
	}
	return patterns, nil
}

// ResolveScored is Resolve with similarity scores. A non-positive topK
// selects DefaultTopK. A question that cannot be embedded resolves to
// nothing.
func (r *Resolver) ResolveScored(ctx context.Context, question string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if r.catalog.UsableCount() == 0 {
		r.log.Warn("No usable log sources, nothing to resolve")
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil || len(vec) == 0 {
		log := r.log.WithContext(ctx)
		if err != nil {
			log = log.WithError(err)
		}
		log.Warn("Question embedding unavailable", "question", security.SanitizeForLog(question))
		return nil, nil
	}

	matches, err := r.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	r.log.WithContext(ctx).Debug("Resolved question",
		"question", security.SanitizeForLog(question),
		"top_k", topK,
		"matches", matches,
	)
	return matches, nil
}
