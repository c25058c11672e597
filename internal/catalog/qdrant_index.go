package catalog

import (
	"context"
	"fmt"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/qdrant"
)

// PointStore is the part of the Qdrant client the index uses.
type PointStore interface {
	HealthCheck(ctx context.Context) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error
	DeletePointsExcept(ctx context.Context, collection string, keep []string) error
	CountPoints(ctx context.Context, collection string) (uint64, error)
	DenseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
}

// QdrantIndex delegates scoring to a Qdrant collection using its native
// cosine distance. The collection mirrors the usable sources of one catalog:
// construction drops points left by earlier runs.
type QdrantIndex struct {
	store      PointStore
	collection string
	catalog    *Catalog
	ids        []string
}

// NewQdrantIndex syncs the collection with the usable sources of c. A
// collection built for another vector dimension is recreated.
func NewQdrantIndex(ctx context.Context, store PointStore, collection string, c *Catalog, log *logger.Logger) (*QdrantIndex, error) {
	q := &QdrantIndex{store: store, collection: collection, catalog: c}

	dim := c.Dimension()
	if dim == 0 {
		log.Warn("No usable source embeddings, qdrant index left empty")
		return q, nil
	}

	if err := q.ensureDimension(ctx, uint64(dim), log); err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, qdrant.DefaultCollectionConfig(collection, uint64(dim))); err != nil {
		return nil, errors.QdrantError("ensure catalog collection", err)
	}

	points := make([]qdrant.Point, 0, c.Len())
	keep := make([]string, 0, c.Len())
	for i, s := range c.sources {
		if len(s.Embedding) != dim {
			continue
		}
		id := qdrant.PointID(s.Pattern)
		keep = append(keep, id)
		points = append(points, qdrant.Point{
			ID:     id,
			Vector: s.Embedding,
			Payload: qdrant.SourcePayload{
				Pattern:     s.Pattern,
				Description: s.Description,
				Position:    i,
			},
		})
	}

	if err := store.UpsertPoints(ctx, collection, points); err != nil {
		return nil, errors.QdrantError("upsert catalog sources", err)
	}
	if err := store.DeletePointsExcept(ctx, collection, keep); err != nil {
		return nil, errors.QdrantError("prune stale catalog sources", err)
	}

	q.ids = keep
	log.Info("Catalog indexed in qdrant", "collection", collection, "points", len(keep))
	return q, nil
}

func (q *QdrantIndex) ensureDimension(ctx context.Context, dim uint64, log *logger.Logger) error {
	exists, err := q.store.CollectionExists(ctx, q.collection)
	if err != nil {
		return errors.QdrantError("check catalog collection", err)
	}
	if !exists {
		return nil
	}

	info, err := q.store.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return errors.QdrantError("inspect catalog collection", err)
	}
	if info.VectorSize == dim {
		return nil
	}

	log.Warn("Catalog collection has another vector size, recreating",
		"collection", q.collection, "have", info.VectorSize, "want", dim)
	if err := q.store.DeleteCollection(ctx, q.collection); err != nil {
		return errors.QdrantError("drop catalog collection", err)
	}
	return nil
}

// Search implements VectorIndex. It fetches every indexed source so that
// ties at the cut-off are broken by catalog position, not by the server.
// The search is restricted to the points this index wrote, and results
// that are not usable sources of the catalog are dropped.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	if len(q.ids) == 0 {
		return nil, nil
	}

	results, err := q.store.DenseSearch(ctx, q.collection, qdrant.SearchRequest{
		Vector: vector,
		Limit:  uint64(len(q.ids)),
		IDs:    q.ids,
	})
	if err != nil {
		return nil, errors.QdrantError("search catalog", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		pos, ok := q.catalog.index[r.Payload.Pattern]
		if !ok || !q.catalog.sources[pos].Usable() {
			continue
		}
		matches = append(matches, Match{
			Pattern:  r.Payload.Pattern,
			Score:    float64(r.Score),
			Position: pos,
		})
	}

	rank(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// HealthCheck reports an unreachable server or a collection that no longer
// holds exactly the indexed sources.
func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	if err := q.store.HealthCheck(ctx); err != nil {
		return err
	}
	if len(q.ids) == 0 {
		return nil
	}

	n, err := q.store.CountPoints(ctx, q.collection)
	if err != nil {
		return err
	}
	if n != uint64(len(q.ids)) {
		return fmt.Errorf("collection %s holds %d points, want %d", q.collection, n, len(q.ids))
	}
	return nil
}
