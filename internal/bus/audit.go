package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
)

// LoggedEvent is an event as stored in the audit log.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends events to a JSON lines file.
type EventLogger struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewEventLogger opens (or creates) the audit file at path.
func NewEventLogger(path string) (*EventLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	return &EventLogger{
		path:    path,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Log appends an event.
func (l *EventLogger) Log(topic string, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeUnavailable, "event logger is closed")
	}

	if err := l.encoder.Encode(LoggedEvent{Event: event, Topic: topic, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// Events reads back events logged after since, oldest first.
// If limit > 0, at most that many are returned.
func (l *EventLogger) Events(since time.Time, limit int) ([]LoggedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	events := []LoggedEvent{}
	scanner := bufio.NewScanner(file)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		var le LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &le); err != nil {
			continue // torn or foreign line
		}
		if !le.Timestamp.After(since) {
			continue
		}
		events = append(events, le)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}
	return events, nil
}

// Replay republishes events logged after since onto b, oldest first, and
// returns how many were published.
func (l *EventLogger) Replay(ctx context.Context, b Bus, since time.Time) (int, error) {
	events, err := l.Events(since, 0)
	if err != nil {
		return 0, err
	}

	for i, le := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := b.Publish(ctx, le.Topic, le.Event); err != nil {
			return i, fmt.Errorf("failed to replay event %s: %w", le.Event.ID, err)
		}
	}
	return len(events), nil
}

// Close closes the audit file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.encoder = nil
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

// AuditBus writes every published event to an EventLogger before handing it
// to the inner bus. A failed write is logged and does not block publishing.
type AuditBus struct {
	inner  Bus
	events *EventLogger
	log    *logger.Logger
}

// NewAuditBus wraps inner with an audit log.
func NewAuditBus(inner Bus, events *EventLogger, log *logger.Logger) *AuditBus {
	if log == nil {
		log = logger.Default()
	}
	return &AuditBus{inner: inner, events: events, log: log}
}

// Publish implements Bus.
func (b *AuditBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.events.Log(topic, event); err != nil {
		b.log.WithError(err).Warn("Failed to write audit event", "topic", topic)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe implements Bus.
func (b *AuditBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the audit log and the inner bus.
func (b *AuditBus) Close() error {
	if err := b.events.Close(); err != nil {
		b.log.WithError(err).Warn("Failed to close audit log")
	}
	return b.inner.Close()
}
