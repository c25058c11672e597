package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/schema"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ClusterPinger checks that a search cluster answers.
type ClusterPinger interface {
	Ping(ctx context.Context, cl *schema.Cluster) error
}

// HealthCheckable is a dependency with a liveness probe, such as the
// vector store.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status     string               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime,omitempty"`
	Components map[string]Component `json:"components"`
}

// Component represents a component's health.
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms,omitempty"`
}

// HealthChecker probes the catalog, every routed cluster and the optional
// vector store.
type HealthChecker struct {
	catalog  *catalog.Catalog
	pinger   ClusterPinger
	clusters []*schema.Cluster
	vectors  HealthCheckable
	timeout  time.Duration
}

// NewHealthChecker creates a health checker. Clusters are collected from the
// registry once, deduplicated by name. vectors may be nil.
func NewHealthChecker(c *catalog.Catalog, reg *schema.Registry, pinger ClusterPinger, vectors HealthCheckable) *HealthChecker {
	h := &HealthChecker{
		catalog: c,
		pinger:  pinger,
		vectors: vectors,
		timeout: 5 * time.Second,
	}

	if reg != nil {
		seen := make(map[string]bool)
		for _, e := range reg.Entries() {
			cl := e.Mapping.Cluster
			if cl == nil || seen[cl.Name] {
				continue
			}
			seen[cl.Name] = true
			h.clusters = append(h.clusters, cl)
		}
	}
	return h
}

// Check performs a full health check. Cluster pings run concurrently.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]Component),
	}

	cat := h.checkCatalog()
	status.Components["catalog"] = cat
	status.Status = worse(status.Status, cat.Status)

	clusters := h.checkClusters(ctx)
	down := 0
	for name, c := range clusters {
		status.Components["cluster:"+name] = c
		if c.Status != StatusHealthy {
			down++
		}
	}
	switch {
	case len(clusters) > 0 && down == len(clusters):
		status.Status = StatusUnhealthy
	case down > 0:
		status.Status = worse(status.Status, StatusDegraded)
	}

	if h.vectors != nil {
		vec := h.checkVectors(ctx)
		status.Components["qdrant"] = vec
		if vec.Status != StatusHealthy {
			status.Status = worse(status.Status, StatusDegraded)
		}
	}

	return status
}

func (h *HealthChecker) checkCatalog() Component {
	if h.catalog == nil || h.catalog.Len() == 0 {
		return Component{Status: StatusUnhealthy, Message: "no log sources configured"}
	}

	usable, total := h.catalog.UsableCount(), h.catalog.Len()
	msg := fmt.Sprintf("%d/%d sources embedded", usable, total)
	switch {
	case usable == 0:
		return Component{Status: StatusUnhealthy, Message: msg}
	case usable < total:
		return Component{Status: StatusDegraded, Message: msg}
	}
	return Component{Status: StatusHealthy, Message: msg}
}

func (h *HealthChecker) checkClusters(ctx context.Context) map[string]Component {
	out := make(map[string]Component, len(h.clusters))
	if h.pinger == nil {
		return out
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, cl := range h.clusters {
		wg.Add(1)
		go func(cl *schema.Cluster) {
			defer wg.Done()
			start := time.Now()
			err := h.pinger.Ping(ctx, cl)
			c := Component{Status: StatusHealthy, Latency: time.Since(start).Milliseconds()}
			if err != nil {
				c.Status = StatusUnhealthy
				c.Message = err.Error()
			}
			mu.Lock()
			out[cl.Name] = c
			mu.Unlock()
		}(cl)
	}
	wg.Wait()
	return out
}

func (h *HealthChecker) checkVectors(ctx context.Context) Component {
	start := time.Now()
	if err := h.vectors.HealthCheck(ctx); err != nil {
		return Component{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).Milliseconds(),
		}
	}
	return Component{Status: StatusHealthy, Latency: time.Since(start).Milliseconds()}
}

func worse(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	status.Version = s.cfg.Version
	status.Uptime = time.Since(s.startTime).Round(time.Second).String()

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// HandleReady handles GET /readyz. Degraded counts as ready.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	if status.Status == StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
