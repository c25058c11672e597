// Package bus carries pipeline audit events to in-process subscribers,
// Kafka, and an optional on-disk event log.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "resolve.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the events of one pipeline run.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType, source, correlationID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// Topics for pipeline events.
const (
	TopicResolveCompleted   = "logscout.resolve.completed"
	TopicRetrievalCompleted = "logscout.retrieval.completed"
	TopicRetrievalFailed    = "logscout.retrieval.failed"
)

// ResolvePayload is published after a question was resolved.
type ResolvePayload struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k"`
	Patterns []string `json:"patterns"`
}

// RetrievalPayload is published after a retrieval finished or failed.
type RetrievalPayload struct {
	IP         string `json:"ip"`
	Index      string `json:"index"`
	Cluster    string `json:"cluster,omitempty"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	HitCount   int    `json:"hit_count"`
	DurationMs int64  `json:"duration_ms"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NopBus drops every event.
type NopBus struct{}

// Publish implements Bus.
func (NopBus) Publish(context.Context, string, Event) error { return nil }

// Subscribe implements Bus.
func (NopBus) Subscribe(context.Context, string, Handler) error { return nil }

// Close implements Bus.
func (NopBus) Close() error { return nil }
