package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/qdrant"
)

// memoryPointStore is an in-process stand-in for a Qdrant collection.
type memoryPointStore struct {
	exists    bool
	dim       uint64
	points    map[string]qdrant.Point
	dropped   bool
	healthErr error
}

func (m *memoryPointStore) HealthCheck(context.Context) error { return m.healthErr }

func (m *memoryPointStore) CollectionExists(context.Context, string) (bool, error) {
	return m.exists, nil
}

func (m *memoryPointStore) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{Name: name, PointsCount: uint64(len(m.points)), VectorSize: m.dim}, nil
}

func (m *memoryPointStore) EnsureCollection(_ context.Context, cfg qdrant.CollectionConfig) error {
	if !m.exists {
		m.exists = true
		m.dim = cfg.VectorSize
		m.points = make(map[string]qdrant.Point)
	}
	return nil
}

func (m *memoryPointStore) DeleteCollection(context.Context, string) error {
	m.exists = false
	m.points = nil
	m.dropped = true
	return nil
}

func (m *memoryPointStore) UpsertPoints(_ context.Context, _ string, points []qdrant.Point) error {
	for _, p := range points {
		if uint64(len(p.Vector)) != m.dim {
			return fmt.Errorf("vector size %d, collection has %d", len(p.Vector), m.dim)
		}
		m.points[p.ID] = p
	}
	return nil
}

func (m *memoryPointStore) DeletePointsExcept(_ context.Context, _ string, keep []string) error {
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	for id := range m.points {
		if !kept[id] {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memoryPointStore) CountPoints(context.Context, string) (uint64, error) {
	return uint64(len(m.points)), nil
}

func (m *memoryPointStore) DenseSearch(_ context.Context, _ string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error) {
	allowed := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		allowed[id] = true
	}

	var results []qdrant.SearchResult
	for id, p := range m.points {
		if len(allowed) > 0 && !allowed[id] {
			continue
		}
		score, ok := Cosine(req.Vector, p.Vector)
		if !ok {
			continue
		}
		results = append(results, qdrant.SearchResult{ID: id, Score: float32(score), Payload: p.Payload})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if uint64(len(results)) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

func (m *memoryPointStore) put(pattern string, vec []float32) {
	m.points[qdrant.PointID(pattern)] = qdrant.Point{
		ID:      qdrant.PointID(pattern),
		Vector:  vec,
		Payload: qdrant.SourcePayload{Pattern: pattern},
	}
}

const userActionQuestion = "find logs for IP 203.0.113.5 on 2025-10-01, user action log"

func TestQdrantIndex_PrunesPointsFromEarlierRuns(t *testing.T) {
	store := &memoryPointStore{exists: true, dim: 3, points: map[string]qdrant.Point{}}
	// Left over from a run where these sources were usable, both scoring 1.0
	// against the question below.
	store.put("retired_source*", []float32{0.9, 0.1, 0})
	store.put("kjyp_xserver_acc*", []float32{0.9, 0.1, 0})

	c, emb := newFixture(t)
	idx, err := NewQdrantIndex(context.Background(), store, "catalog", c, logger.Discard())
	if err != nil {
		t.Fatalf("NewQdrantIndex() error = %v", err)
	}

	if len(store.points) != 3 {
		t.Errorf("points = %d, want 3 usable sources", len(store.points))
	}
	for _, stale := range []string{"retired_source*", "kjyp_xserver_acc*"} {
		if _, ok := store.points[qdrant.PointID(stale)]; ok {
			t.Errorf("stale point %s still stored", stale)
		}
	}

	r := NewResolver(c, emb, idx, logger.Discard())
	got, err := r.Resolve(context.Background(), userActionQuestion, 2)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := []string{"email_user_action_2026*", "email_firewall*"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
	if err := idx.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestQdrantIndex_SearchIgnoresForeignPoints(t *testing.T) {
	store := &memoryPointStore{}
	c, _ := newFixture(t)
	idx, err := NewQdrantIndex(context.Background(), store, "catalog", c, logger.Discard())
	if err != nil {
		t.Fatalf("NewQdrantIndex() error = %v", err)
	}

	// Written after construction, e.g. by another process sharing the collection.
	store.put("kjyp_xserver_acc*", []float32{0.9, 0.1, 0})
	store.put("unknown*", []float32{0.9, 0.1, 0})

	matches, err := idx.Search(context.Background(), []float32{0.9, 0.1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = m.Pattern
	}
	if want := []string{"email_user_action_2026*", "email_firewall*", "pass_security_bastion*"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Search() = %v, want %v", got, want)
	}

	if err := idx.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil, want point count mismatch")
	}
}

func TestQdrantIndex_RecreatesCollectionOnDimensionChange(t *testing.T) {
	store := &memoryPointStore{exists: true, dim: 2, points: map[string]qdrant.Point{}}
	store.put("email_firewall*", []float32{0, 1})

	c, _ := newFixture(t)
	if _, err := NewQdrantIndex(context.Background(), store, "catalog", c, logger.Discard()); err != nil {
		t.Fatalf("NewQdrantIndex() error = %v", err)
	}

	if !store.dropped {
		t.Error("collection with old vector size was not dropped")
	}
	if store.dim != 3 || len(store.points) != 3 {
		t.Errorf("collection dim = %d points = %d, want 3 and 3", store.dim, len(store.points))
	}
}

func TestQdrantIndex_HealthCheckUnreachable(t *testing.T) {
	store := &memoryPointStore{}
	c, _ := newFixture(t)
	idx, err := NewQdrantIndex(context.Background(), store, "catalog", c, logger.Discard())
	if err != nil {
		t.Fatalf("NewQdrantIndex() error = %v", err)
	}

	down := errors.New("connection refused")
	store.healthErr = down
	if err := idx.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("HealthCheck() error = %v, want %v", err, down)
	}
}
