// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/metrics"
	"github.com/ricesearch/logscout/internal/pipeline"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/pkg/middleware"
)

// Server is the HTTP front of the pipeline.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server
	handler    http.Handler
	limiter    *middleware.RateLimiter
	startTime  time.Time

	orchestrator *pipeline.Orchestrator
	catalog      *catalog.Catalog
	health       *HealthChecker
	metrics      *metrics.Metrics

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// APIKey guards the /v1 routes. Empty disables authentication.
	APIKey string

	// RateLimit is the per-client request rate. 0 disables limiting.
	RateLimit int

	// MetricsPath serves the Prometheus exposition. Empty disables it.
	MetricsPath string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Deps are the services the server routes to. Metrics may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Catalog      *catalog.Catalog
	Health       *HealthChecker
	Metrics      *metrics.Metrics
}

// New creates a server. It does not listen until Start.
func New(cfg Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Orchestrator == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("server requires an orchestrator and a catalog")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	if log == nil {
		log = logger.Default()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(deps.Catalog, nil, nil, nil)
	}

	s := &Server{
		cfg:          cfg,
		log:          log,
		startTime:    time.Now(),
		orchestrator: deps.Orchestrator,
		catalog:      deps.Catalog,
		health:       deps.Health,
		metrics:      deps.Metrics,
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes and middleware. Authentication and
// rate limiting apply to /v1 only.
func (s *Server) setupRoutes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/resolve", s.HandleResolve)
	api.HandleFunc("POST /v1/retrieve", s.HandleRetrieve)
	api.HandleFunc("POST /v1/ask", s.HandleAsk)
	api.HandleFunc("GET /v1/sources", s.HandleSources)
	api.HandleFunc("GET /v1/sources/{pattern}", s.HandleSource)
	api.HandleFunc("GET /v1/history", s.HandleHistory)

	var apiHandler http.Handler = api
	if s.cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.RateLimit),
			Burst:             s.cfg.RateLimit * 2,
		})
		apiHandler = s.limiter.Middleware(apiHandler)
	}
	apiHandler = middleware.APIKey(s.cfg.APIKey)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", apiHandler)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.HandleFunc("GET /readyz", s.HandleReady)
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = metrics.HTTPMiddleware(s.metrics, handler)
	}

	return middleware.Chain(handler,
		middleware.Recover(s.log),
		middleware.RequestID,
		middleware.Logging(s.log),
		middleware.CORS,
	)
}

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln and blocks until Stop. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")
	return err
}

// Health reports whether the server is serving.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
