package embedding

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
)

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(100)

	embedding := []float32{0.1, 0.2, 0.3}
	cache.Set(ctx, "k", embedding)

	got, ok := cache.Get(ctx, "k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	for i := range embedding {
		if got[i] != embedding[i] {
			t.Errorf("got[%d] = %f, want %f", i, got[i], embedding[i])
		}
	}

	if _, ok := cache.Get(ctx, "missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestMemoryCache_LRU(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(3)

	cache.Set(ctx, "a", []float32{1})
	cache.Set(ctx, "b", []float32{2})
	cache.Set(ctx, "c", []float32{3})

	// Access "a" to make it recently used
	cache.Get(ctx, "a")

	// Add one more (should evict "b" as LRU)
	cache.Set(ctx, "d", []float32{4})

	if _, ok := cache.Get(ctx, "a"); !ok {
		t.Error("expected 'a' to be present after LRU access")
	}
	if _, ok := cache.Get(ctx, "b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if cache.Size() != 3 {
		t.Errorf("size = %d, want 3", cache.Size())
	}
}

func TestMemoryCache_ImmutableCopy(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10)

	original := []float32{1, 2, 3}
	cache.Set(ctx, "test", original)
	original[0] = 999

	got, _ := cache.Get(ctx, "test")
	if got[0] != 1 {
		t.Error("cache value was mutated")
	}

	got[1] = 888
	got2, _ := cache.Get(ctx, "test")
	if got2[1] != 2 {
		t.Error("cache value was mutated through returned slice")
	}
}

type countingMetrics struct {
	hits, misses int
	size         int
}

func (m *countingMetrics) RecordCacheHit(string)           { m.hits++ }
func (m *countingMetrics) RecordCacheMiss(string)          { m.misses++ }
func (m *countingMetrics) UpdateCacheSize(_ string, n int) { m.size = n }

func TestMemoryCache_Metrics(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10)
	m := &countingMetrics{}
	cache.SetMetrics(m)

	cache.Get(ctx, "a")
	cache.Set(ctx, "a", []float32{1})
	cache.Get(ctx, "a")
	cache.Clear()

	if m.hits != 1 || m.misses != 1 {
		t.Errorf("hits = %d, misses = %d, want 1 and 1", m.hits, m.misses)
	}
	if m.size != 0 {
		t.Errorf("size after Clear = %d, want 0", m.size)
	}
}

type stubEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls.Add(1)
	return s.vec, s.err
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vec: []float32{1, 0}}
	e := NewCachedEmbedder(stub, NewMemoryCache(10), "m")

	for i := 0; i < 3; i++ {
		vec, err := e.Embed(ctx, "same text")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(vec) != 2 {
			t.Fatalf("len(vec) = %d, want 2", len(vec))
		}
	}

	if n := stub.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestCachedEmbedder_DoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{err: errors.EmbeddingUnavailableError("down", nil)}
	e := NewCachedEmbedder(stub, NewMemoryCache(10), "m")

	e.Embed(ctx, "q")
	e.Embed(ctx, "q")

	if n := stub.calls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3e-7}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector() error = %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("decodeVector() should reject a truncated payload")
	}
}

func TestRedisCache(t *testing.T) {
	cache, err := NewRedisCache("redis://localhost:6379/15", 0)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer cache.Close()

	ctx := context.Background()
	defer cache.Delete(ctx, "test-key")

	cache.Set(ctx, "test-key", []float32{1, 2})
	got, ok := cache.Get(ctx, "test-key")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[1] != 2 {
		t.Errorf("got = %v, want [1 2]", got)
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("invalid://url", 0); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

type embedRecorder struct {
	calls, failures int
}

func (r *embedRecorder) RecordEmbedding(_ time.Duration, err error) {
	r.calls++
	if err != nil {
		r.failures++
	}
}

func TestInstrumentedEmbedder(t *testing.T) {
	rec := &embedRecorder{}
	ok := NewInstrumentedEmbedder(&stubEmbedder{vec: []float32{1}}, rec)
	if _, err := ok.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	failing := NewInstrumentedEmbedder(&stubEmbedder{err: errors.New(errors.CodeInternal, "down")}, rec)
	if _, err := failing.Embed(context.Background(), "x"); err == nil {
		t.Fatal("Embed() should propagate the error")
	}

	if rec.calls != 2 || rec.failures != 1 {
		t.Errorf("calls = %d failures = %d, want 2 and 1", rec.calls, rec.failures)
	}
}
