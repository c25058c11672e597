package metrics

import (
	"runtime"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
)

// Retrieval outcomes used as the "outcome" label.
const (
	OutcomeFound      = "found"
	OutcomeNoRecords  = "no_records"
	OutcomeNoIndex    = "no_index"
	OutcomeError      = "error"
	persistenceRedis  = "redis"
	persistenceMemory = "memory"
)

var hitBuckets = []float64{0, 1, 10, 50, 100, 500, 1000, 2500, 5000, 10000}

// Metrics holds all application metrics.
type Metrics struct {
	// Resolver metrics
	ResolveRequests *Counter
	ResolveLatency  *Histogram
	ResolveEmpty    *Counter

	// Embedding provider metrics
	EmbedRequests *CounterVec // labels: status
	EmbedLatency  *Histogram

	// Cache metrics
	CacheHits   *CounterVec // labels: type
	CacheMisses *CounterVec // labels: type
	CacheSize   *GaugeVec   // labels: type

	// Retrieval metrics
	RetrievalRequests *CounterVec // labels: outcome
	RetrievalErrors   *CounterVec // labels: code
	RetrievalLatency  *Histogram
	RetrievalHits     *Histogram

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusErrors          *CounterVec   // labels: topic
	BusPublishLatency  *HistogramVec // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge
	Uptime         *Gauge

	// History holds bucketed retrieval rates for trend queries.
	History *TimeSeriesData

	storage   *RedisStorage
	startTime time.Time
}

// New creates a metrics instance with in-memory history.
func New() *Metrics {
	return NewWithConfig(persistenceMemory, "", nil)
}

// NewWithConfig creates a metrics instance. persistence is "memory" or
// "redis". A Redis connection failure falls back to in-memory history.
func NewWithConfig(persistence, redisURL string, log *logger.Logger) *Metrics {
	if log == nil {
		log = logger.Default()
	}

	var storage *RedisStorage
	history := NewTimeSeriesData()
	if persistence == persistenceRedis && redisURL != "" {
		s, err := NewRedisStorage(redisURL)
		if err != nil {
			log.WithError(err).Warn("Metrics history falls back to memory")
		} else {
			storage = s
			history = NewTimeSeriesDataWithRedis(s)
		}
	}

	return &Metrics{
		ResolveRequests: NewCounter("logscout_resolve_requests_total", "Total number of index resolutions", nil),
		ResolveLatency:  NewHistogram("logscout_resolve_latency_ms", "Index resolution latency in milliseconds", nil, nil),
		ResolveEmpty:    NewCounter("logscout_resolve_empty_total", "Resolutions that produced no candidate index", nil),

		EmbedRequests: NewCounterVec("logscout_embedding_requests_total", "Embedding provider calls", []string{"status"}),
		EmbedLatency:  NewHistogram("logscout_embedding_latency_ms", "Embedding provider latency in milliseconds", nil, nil),

		CacheHits:   NewCounterVec("logscout_cache_hits_total", "Cache hits", []string{"type"}),
		CacheMisses: NewCounterVec("logscout_cache_misses_total", "Cache misses", []string{"type"}),
		CacheSize:   NewGaugeVec("logscout_cache_size", "Cached entries", []string{"type"}),

		RetrievalRequests: NewCounterVec("logscout_retrieval_requests_total", "Retrievals by outcome", []string{"outcome"}),
		RetrievalErrors:   NewCounterVec("logscout_retrieval_errors_total", "Failed retrievals by error code", []string{"code"}),
		RetrievalLatency:  NewHistogram("logscout_retrieval_latency_ms", "Retrieval latency in milliseconds", nil, nil),
		RetrievalHits:     NewHistogram("logscout_retrieval_hits", "Records returned per retrieval", hitBuckets, nil),

		BusEventsPublished: NewCounterVec("logscout_bus_events_published_total", "Events published", []string{"topic"}),
		BusErrors:          NewCounterVec("logscout_bus_errors_total", "Event publish failures", []string{"topic"}),
		BusPublishLatency:  NewHistogramVec("logscout_bus_publish_latency_ms", "Event publish latency in milliseconds", []string{"topic"}, nil),

		HTTPRequests:         NewCounterVec("logscout_http_requests_total", "HTTP requests", []string{"method", "path", "status"}),
		HTTPDuration:         NewHistogramVec("logscout_http_request_duration_ms", "HTTP request duration in milliseconds", []string{"method", "path"}, nil),
		HTTPRequestsInFlight: NewGauge("logscout_http_requests_in_flight", "HTTP requests being served", nil),

		GoroutineCount: NewGauge("logscout_goroutines", "Number of goroutines", nil),
		MemoryUsage:    NewGauge("logscout_memory_bytes", "Heap bytes in use", nil),
		Uptime:         NewGauge("logscout_uptime_seconds", "Seconds since start", nil),

		History:   history,
		storage:   storage,
		startTime: time.Now(),
	}
}

// RecordResolve records one resolution and the number of patterns returned.
func (m *Metrics) RecordResolve(latency time.Duration, patterns int) {
	m.ResolveRequests.Inc()
	m.ResolveLatency.Observe(ms(latency))
	if patterns == 0 {
		m.ResolveEmpty.Inc()
	}
}

// RecordEmbedding implements embedding.EmbedMetrics.
func (m *Metrics) RecordEmbedding(latency time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EmbedRequests.WithLabels(status).Inc()
	m.EmbedLatency.Observe(ms(latency))
}

// RecordCacheHit implements embedding.CacheMetrics.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabels(cacheType).Inc()
}

// RecordCacheMiss implements embedding.CacheMetrics.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabels(cacheType).Inc()
}

// UpdateCacheSize implements embedding.CacheMetrics.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabels(cacheType).Set(float64(size))
}

// RecordRetrieval records a finished retrieval. err takes precedence over
// hitCount when choosing the outcome.
func (m *Metrics) RecordRetrieval(latency time.Duration, hitCount int, err error) {
	m.RetrievalLatency.Observe(ms(latency))
	m.History.RecordRetrieval(ms(latency))

	switch {
	case err != nil:
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeInternal
		}
		m.RetrievalRequests.WithLabels(OutcomeError).Inc()
		m.RetrievalErrors.WithLabels(code).Inc()
		m.History.RecordError()
	case hitCount == 0:
		m.RetrievalRequests.WithLabels(OutcomeNoRecords).Inc()
		m.RetrievalHits.Observe(0)
	default:
		m.RetrievalRequests.WithLabels(OutcomeFound).Inc()
		m.RetrievalHits.Observe(float64(hitCount))
		m.History.RecordHits(hitCount)
	}
}

// RecordNoIndex records a question for which no index was resolved.
func (m *Metrics) RecordNoIndex() {
	m.RetrievalRequests.WithLabels(OutcomeNoIndex).Inc()
}

// RecordBusPublish implements bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusPublishLatency.WithLabels(topic).Observe(ms(latency))
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
		return
	}
	m.BusEventsPublished.WithLabels(topic).Inc()
}

// RecordHTTP records one served HTTP request.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabels(method, path, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(ms(duration))
}

// UpdateSystemMetrics refreshes the runtime gauges.
func (m *Metrics) UpdateSystemMetrics() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.MemoryUsage.Set(float64(mem.HeapInuse))
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// Close releases the history backend.
func (m *Metrics) Close() error {
	if m.storage != nil {
		return m.storage.Close()
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
