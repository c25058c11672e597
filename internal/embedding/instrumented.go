package embedding

import (
	"context"
	"time"
)

// EmbedMetrics records provider calls.
type EmbedMetrics interface {
	RecordEmbedding(latency time.Duration, err error)
}

// InstrumentedEmbedder reports every call to the wrapped embedder.
type InstrumentedEmbedder struct {
	next    Embedder
	metrics EmbedMetrics
}

// NewInstrumentedEmbedder wraps next.
func NewInstrumentedEmbedder(next Embedder, metrics EmbedMetrics) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{next: next, metrics: metrics}
}

// Embed implements Embedder.
func (e *InstrumentedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := e.next.Embed(ctx, text)
	if e.metrics != nil {
		e.metrics.RecordEmbedding(time.Since(start), err)
	}
	return vec, err
}
