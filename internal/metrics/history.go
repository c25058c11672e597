package metrics

import (
	"context"
	"sync"
	"time"
)

// DataPoint represents a single time-series data point.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// aggregation selects how a bucket's observations collapse into one value.
type aggregation int

const (
	aggregateMean aggregation = iota
	aggregateSum
)

// MetricHistory keeps a fixed number of time buckets, optionally mirrored to
// Redis.
type MetricHistory struct {
	mu          sync.Mutex
	buckets     []DataPoint
	bucketSize  time.Duration
	maxBuckets  int
	agg         aggregation
	accumulator float64
	count       int64
	current     time.Time
	now         func() time.Time

	storage    *RedisStorage
	metricName string
}

func newMetricHistory(bucketSize time.Duration, maxBuckets int, agg aggregation) *MetricHistory {
	return &MetricHistory{
		buckets:    make([]DataPoint, 0, maxBuckets),
		bucketSize: bucketSize,
		maxBuckets: maxBuckets,
		agg:        agg,
		now:        time.Now,
		current:    time.Now().Truncate(bucketSize),
	}
}

// withRedis loads previously persisted buckets and mirrors new ones.
func (h *MetricHistory) withRedis(storage *RedisStorage, metricName string) *MetricHistory {
	h.storage = storage
	h.metricName = metricName

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	since := h.now().Add(-time.Duration(h.maxBuckets) * h.bucketSize)
	if points, err := storage.LoadHistory(ctx, metricName, since); err == nil && len(points) > 0 {
		if len(points) > h.maxBuckets {
			points = points[len(points)-h.maxBuckets:]
		}
		h.buckets = points
	}
	return h
}

// Record adds an observation to the current bucket.
func (h *MetricHistory) Record(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rollLocked()
	h.accumulator += value
	h.count++
}

// rollLocked closes the current bucket when the clock has moved past it.
func (h *MetricHistory) rollLocked() {
	bucket := h.now().Truncate(h.bucketSize)
	if !bucket.After(h.current) {
		return
	}

	if h.count > 0 {
		dp := DataPoint{Timestamp: h.current, Value: h.valueLocked()}
		h.buckets = append(h.buckets, dp)
		if len(h.buckets) > h.maxBuckets {
			h.buckets = h.buckets[len(h.buckets)-h.maxBuckets:]
		}
		h.persist(dp)
	}

	h.current = bucket
	h.accumulator = 0
	h.count = 0
}

func (h *MetricHistory) valueLocked() float64 {
	if h.agg == aggregateMean && h.count > 0 {
		return h.accumulator / float64(h.count)
	}
	return h.accumulator
}

func (h *MetricHistory) persist(dp DataPoint) {
	if h.storage == nil || h.metricName == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.storage.SaveDataPoint(ctx, h.metricName, dp)
	}()
}

// Points returns closed buckets plus the open one, oldest first.
func (h *MetricHistory) Points() []DataPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rollLocked()
	result := make([]DataPoint, len(h.buckets), len(h.buckets)+1)
	copy(result, h.buckets)
	if h.count > 0 {
		result = append(result, DataPoint{Timestamp: h.current, Value: h.valueLocked()})
	}
	return result
}

// PointsSince returns data points at or after since.
func (h *MetricHistory) PointsSince(since time.Time) []DataPoint {
	all := h.Points()
	result := make([]DataPoint, 0, len(all))
	for _, dp := range all {
		if !dp.Timestamp.Before(since) {
			result = append(result, dp)
		}
	}
	return result
}

// TimeSeriesData holds the retrieval trends served by /v1/history.
type TimeSeriesData struct {
	RetrievalRate    *MetricHistory // retrievals per bucket
	RetrievalLatency *MetricHistory // mean latency per bucket, ms
	RecordVolume     *MetricHistory // records returned per bucket
	ErrorRate        *MetricHistory // failed retrievals per bucket
}

const (
	historyBucket  = 5 * time.Minute
	historyBuckets = 12
)

// NewTimeSeriesData creates in-memory series with one hour of retention.
func NewTimeSeriesData() *TimeSeriesData {
	return &TimeSeriesData{
		RetrievalRate:    newMetricHistory(historyBucket, historyBuckets, aggregateSum),
		RetrievalLatency: newMetricHistory(historyBucket, historyBuckets, aggregateMean),
		RecordVolume:     newMetricHistory(historyBucket, historyBuckets, aggregateSum),
		ErrorRate:        newMetricHistory(historyBucket, historyBuckets, aggregateSum),
	}
}

// NewTimeSeriesDataWithRedis creates series mirrored to Redis.
func NewTimeSeriesDataWithRedis(storage *RedisStorage) *TimeSeriesData {
	t := NewTimeSeriesData()
	t.RetrievalRate.withRedis(storage, "retrieval_rate")
	t.RetrievalLatency.withRedis(storage, "retrieval_latency")
	t.RecordVolume.withRedis(storage, "record_volume")
	t.ErrorRate.withRedis(storage, "error_rate")
	return t
}

// RecordRetrieval counts a retrieval and its latency.
func (t *TimeSeriesData) RecordRetrieval(latencyMs float64) {
	t.RetrievalRate.Record(1)
	t.RetrievalLatency.Record(latencyMs)
}

// RecordHits adds returned records to the volume series.
func (t *TimeSeriesData) RecordHits(n int) {
	t.RecordVolume.Record(float64(n))
}

// RecordError counts a failed retrieval.
func (t *TimeSeriesData) RecordError() {
	t.ErrorRate.Record(1)
}

// Snapshot returns every series by name.
func (t *TimeSeriesData) Snapshot() map[string][]DataPoint {
	return map[string][]DataPoint{
		"retrieval_rate":    t.RetrievalRate.Points(),
		"retrieval_latency": t.RetrievalLatency.Points(),
		"record_volume":     t.RecordVolume.Points(),
		"error_rate":        t.ErrorRate.Points(),
	}
}
