// Package app wires configuration into a ready pipeline shared by the CLI
// and the HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/ricesearch/logscout/internal/bus"
	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/config"
	"github.com/ricesearch/logscout/internal/embedding"
	"github.com/ricesearch/logscout/internal/metrics"
	"github.com/ricesearch/logscout/internal/pipeline"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/pkg/security"
	"github.com/ricesearch/logscout/internal/qdrant"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/retrieval"
	"github.com/ricesearch/logscout/internal/schema"
	"github.com/ricesearch/logscout/internal/server"
)

// App holds the wired services.
type App struct {
	Config       *config.Config
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	Catalog      *catalog.Catalog
	Registry     *schema.Registry
	Resolver     *catalog.Resolver
	Searcher     *retrieval.ESSearcher
	Bus          bus.Bus
	Orchestrator *pipeline.Orchestrator
	Health       *server.HealthChecker

	closers []func() error
}

// Option adjusts wiring.
type Option func(*options)

type options struct {
	embedder embedding.Embedder
	rewriter pipeline.Rewriter
}

// WithEmbedder replaces the configured embedding provider client.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithRewriter replaces the built-in pattern rewriter.
func WithRewriter(r pipeline.Rewriter) Option {
	return func(o *options) { o.rewriter = r }
}

// Build creates every service in dependency order. Source descriptions are
// embedded here, so Build calls the embedding provider once per uncached
// source. On error, whatever was already opened is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Default()
	}

	a := &App{Config: cfg, Log: log}
	if err := a.build(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg, log := a.Config, a.Log
	log.Info("Configuration loaded", "settings", Settings(cfg))

	// Metrics first: the embedder, cache and bus report into them.
	a.Metrics = metrics.NewWithConfig(cfg.Observability.HistoryPersistence, cfg.Observability.HistoryRedisURL, log)
	a.closers = append(a.closers, a.Metrics.Close)

	embedder, err := a.buildEmbedder(o.embedder)
	if err != nil {
		return err
	}

	a.Catalog, err = catalog.New(ctx, catalog.FromConfig(cfg.Sources), embedder, log)
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}
	log.Info("Catalog loaded", "sources", a.Catalog.Len(), "usable", a.Catalog.UsableCount())

	index, vectors, err := a.buildIndex(ctx)
	if err != nil {
		return err
	}
	a.Resolver = catalog.NewResolver(a.Catalog, embedder, index, log)

	a.Registry, err = schema.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to build schema registry: %w", err)
	}

	builder := query.NewBuilder(a.Registry,
		query.WithLocation(cfg.Location()),
		query.WithWindow(cfg.Retrieval.DefaultWindow),
		query.WithMaxSize(cfg.Retrieval.MaxResults),
	)
	a.Searcher = retrieval.NewESSearcher()
	executor := retrieval.NewExecutor(a.Registry, a.Searcher, log)

	inner, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	a.Bus = bus.NewInstrumentedBus(inner, a.Metrics)
	a.closers = append(a.closers, a.Bus.Close)
	if err := a.Bus.Subscribe(ctx, bus.TopicRetrievalFailed, a.logFailure); err != nil {
		log.Warn("Failed to subscribe to retrieval failures", "error", err)
	}

	popts := []pipeline.Option{
		pipeline.WithBus(a.Bus),
		pipeline.WithRecorder(a.Metrics),
		pipeline.WithLogger(log),
		pipeline.WithTopK(cfg.Resolver.DefaultTopK),
	}
	if o.rewriter != nil {
		popts = append(popts, pipeline.WithRewriter(o.rewriter))
	}
	a.Orchestrator = pipeline.New(a.Resolver, builder, executor, popts...)

	a.Health = server.NewHealthChecker(a.Catalog, a.Registry, a.Searcher, vectors)
	return nil
}

// Settings flattens the connection settings of cfg for logging. URLs lose
// their passwords and credential-like keys are masked.
func Settings(cfg *config.Config) map[string]string {
	settings := map[string]string{
		"embedding.url":     security.RedactURL(cfg.Embedding.URL),
		"embedding.model":   cfg.Embedding.Model,
		"embedding.api_key": cfg.Embedding.APIKey,
		"resolver.backend":  cfg.Resolver.Backend,
		"cache.type":        cfg.Cache.Type,
		"cache.redis_url":   security.RedactURL(cfg.Cache.RedisURL),
		"bus.type":          cfg.Bus.Type,
		"bus.kafka_brokers": cfg.Bus.KafkaBrokers,
		"security.api_key":  cfg.Security.APIKey,
		"metrics.redis_url": security.RedactURL(cfg.Observability.HistoryRedisURL),
	}
	if cfg.Resolver.Backend == "qdrant" {
		settings["qdrant.address"] = fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)
		settings["qdrant.api_key"] = cfg.Qdrant.APIKey
	}
	for _, cl := range cfg.AllClusters() {
		prefix := "cluster." + cl.Name + "."
		settings[prefix+"url"] = security.RedactURL(cl.URL)
		settings[prefix+"username"] = cl.Username
		settings[prefix+"password"] = cl.Password
	}

	for k, v := range settings {
		if v == "" {
			delete(settings, k)
		}
	}
	return security.MaskSensitiveMap(settings)
}

// buildEmbedder stacks provider client, instrumentation and cache.
func (a *App) buildEmbedder(override embedding.Embedder) (embedding.Embedder, error) {
	cfg := a.Config

	base := override
	model := cfg.Embedding.Model
	if base == nil {
		client, err := embedding.NewClient(embedding.Config{
			URL:       cfg.Embedding.URL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Timeout:   cfg.Embedding.Timeout,
			RateLimit: cfg.Embedding.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		base = client
	}

	var e embedding.Embedder = embedding.NewInstrumentedEmbedder(base, a.Metrics)

	switch cfg.Cache.Type {
	case "none":
		return e, nil
	case "redis":
		rc, err := embedding.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err == nil {
			a.closers = append(a.closers, rc.Close)
			a.Log.Info("Embedding cache: redis", "url", security.RedactURL(cfg.Cache.RedisURL))
			return embedding.NewCachedEmbedder(e, rc, model), nil
		}
		a.Log.Warn("Redis embedding cache unavailable, using memory", "error", err)
	}

	mc := embedding.NewMemoryCache(cfg.Cache.Size)
	mc.SetMetrics(a.Metrics)
	return embedding.NewCachedEmbedder(e, mc, model), nil
}

// buildIndex returns the vector index for the configured resolver backend.
// The memory backend returns a nil index, which the resolver replaces with
// its in-memory scan.
func (a *App) buildIndex(ctx context.Context) (catalog.VectorIndex, server.HealthCheckable, error) {
	cfg := a.Config
	if cfg.Resolver.Backend != "qdrant" {
		return nil, nil, nil
	}

	qc, err := qdrant.NewClient(qdrant.ClientConfig{
		Host:    cfg.Qdrant.Host,
		Port:    cfg.Qdrant.Port,
		APIKey:  cfg.Qdrant.APIKey,
		UseTLS:  cfg.Qdrant.UseTLS,
		Timeout: cfg.Qdrant.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	a.closers = append(a.closers, qc.Close)

	idx, err := catalog.NewQdrantIndex(ctx, qc, cfg.Qdrant.Collection, a.Catalog, a.Log)
	if err != nil {
		return nil, nil, err
	}
	a.Log.Info("Resolver backend: qdrant", "host", cfg.Qdrant.Host, "port", cfg.Qdrant.Port)
	return idx, idx, nil
}

func (a *App) logFailure(_ context.Context, ev bus.Event) error {
	l := a.Log.With("run", ev.CorrelationID)
	switch p := ev.Payload.(type) {
	case bus.RetrievalPayload:
		l.Warn("Retrieval failed",
			"index", p.Index,
			"code", p.ErrorCode,
			"error", p.Error,
			"duration_ms", p.DurationMs,
		)
	default:
		l.Warn("Retrieval failed", "event", ev.ID)
	}
	return nil
}

// ServerConfig derives the HTTP server settings.
func (a *App) ServerConfig(version string) server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = a.Config.Host
	cfg.Port = a.Config.Port
	cfg.Version = version
	cfg.APIKey = a.Config.Security.APIKey
	cfg.RateLimit = a.Config.Security.RateLimit
	cfg.MetricsPath = ""
	if a.Config.Observability.MetricsEnabled {
		cfg.MetricsPath = a.Config.Observability.MetricsPath
	}
	return cfg
}

// ServerDeps returns the services the HTTP server routes to.
func (a *App) ServerDeps() server.Deps {
	return server.Deps{
		Orchestrator: a.Orchestrator,
		Catalog:      a.Catalog,
		Health:       a.Health,
		Metrics:      a.Metrics,
	}
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Error closing service", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}
