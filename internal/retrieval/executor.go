package retrieval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/schema"
)

// ClusterRouter resolves the cluster that owns an index.
type ClusterRouter interface {
	ClusterFor(index string) (*schema.Cluster, error)
}

// Executor runs queries against the owning cluster. It keeps no state
// between calls.
type Executor struct {
	router   ClusterRouter
	searcher Searcher
	log      *logger.Logger
}

// NewExecutor creates an executor.
func NewExecutor(router ClusterRouter, searcher Searcher, log *logger.Logger) *Executor {
	return &Executor{
		router:   router,
		searcher: searcher,
		log:      log,
	}
}

// Execute runs q against index. An index without a cluster route fails with
// NO_CLUSTER_ROUTE. Transport, auth and missing-index failures fail with
// RETRIEVAL_ERROR. Zero hits returns an empty result and no error.
func (e *Executor) Execute(ctx context.Context, q *query.Query, index string) (*Result, error) {
	if index == "" {
		index = q.Index
	}

	cluster, err := e.router.ClusterFor(index)
	if err != nil {
		return nil, err
	}

	log := e.log.WithContext(ctx).WithIndex(index).WithCluster(cluster.Name)

	body, err := json.Marshal(q)
	if err != nil {
		return nil, errors.InternalError("marshal query", err)
	}

	start := time.Now()
	hits, err := e.searcher.Search(ctx, cluster, index, body)
	if err != nil {
		log.WithError(err).Error("Retrieval failed", "duration", time.Since(start))
		return nil, errors.RetrievalError(index, err).WithDetail("cluster", cluster.Name)
	}

	records := make([]*Record, 0, len(hits.Sources))
	for _, src := range hits.Sources {
		rec, err := DecodeRecord(src)
		if err != nil {
			return nil, errors.RetrievalError(index, err).WithDetail("cluster", cluster.Name)
		}
		records = append(records, rec)
	}

	res := &Result{
		Index:    index,
		Cluster:  cluster.Name,
		HitCount: len(records),
		Total:    hits.Total,
		Records:  records,
		Took:     time.Since(start),
	}

	log.Info("Retrieval completed",
		"hits", res.HitCount,
		"total", res.Total,
		"duration", res.Took,
	)
	if res.Truncated() {
		log.Warn("Result truncated at size cap", "size", q.Size, "total", res.Total)
	}

	return res, nil
}
