package metrics

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisStorage_InvalidURL(t *testing.T) {
	if _, err := NewRedisStorage("invalid://url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisStorage_ConnectionFailure(t *testing.T) {
	if _, err := NewRedisStorage("redis://localhost:9999"); err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestNewWithConfig_RedisFallback(t *testing.T) {
	m := NewWithConfig("redis", "redis://localhost:9999", nil)
	defer m.Close()

	if m.storage != nil {
		t.Error("unreachable Redis should fall back to memory history")
	}
	if m.History == nil {
		t.Fatal("History should always be set")
	}
}

func TestParseMember(t *testing.T) {
	dp := DataPoint{Timestamp: time.Unix(1759276800, 0), Value: 12.5}
	v, ok := parseMember(member(dp))
	if !ok || v != 12.5 {
		t.Errorf("parseMember(member()) = %f, %v", v, ok)
	}
	if _, ok := parseMember("garbage"); ok {
		t.Error("parseMember(garbage) should fail")
	}
}

func TestRedisStorage_SaveAndLoad(t *testing.T) {
	storage, err := NewRedisStorage("redis://localhost:6379/15")
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer storage.Close()

	ctx := context.Background()
	defer storage.DeleteMetric(ctx, "test_metric")

	now := time.Now().Truncate(time.Second)
	points := []DataPoint{
		{Timestamp: now.Add(-10 * time.Minute), Value: 7},
		{Timestamp: now.Add(-5 * time.Minute), Value: 7},
		{Timestamp: now, Value: 30.5},
	}
	if err := storage.SaveBatch(ctx, "test_metric", points); err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}

	loaded, err := storage.LoadHistory(ctx, "test_metric", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d points, want 3", len(loaded))
	}
	if loaded[2].Value != 30.5 {
		t.Errorf("last value = %f, want 30.5", loaded[2].Value)
	}

	names, err := storage.MetricNames(ctx)
	if err != nil {
		t.Fatalf("MetricNames() error = %v", err)
	}
	found := false
	for _, n := range names {
		if n == "test_metric" {
			found = true
		}
	}
	if !found {
		t.Errorf("MetricNames() = %v, want test_metric", names)
	}
}
