package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/metrics"
	"github.com/ricesearch/logscout/internal/pipeline"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/retrieval"
	"github.com/ricesearch/logscout/internal/schema"
)

const askQuestion = "find logs for IP 203.0.113.5 on 2025-10-01"

type keywordEmbedder map[string][]float32

func (k keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return k[text], nil
}

type fakePinger struct {
	down map[string]bool
}

func (p fakePinger) Ping(_ context.Context, cl *schema.Cluster) error {
	if p.down[cl.Name] {
		return stderrors.New("connection refused")
	}
	return nil
}

type fakeVectors struct{ err error }

func (v fakeVectors) HealthCheck(context.Context) error { return v.err }

type fixture struct {
	srv     *Server
	handler http.Handler
	metrics *metrics.Metrics
	cat     *catalog.Catalog
	reg     *schema.Registry
}

// newFixture wires a real pipeline against a fake cluster answering with body.
func newFixture(t *testing.T, cfg Config, status int, body string) *fixture {
	t.Helper()

	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(es.Close)

	emb := keywordEmbedder{
		"Mail system user action log": {1, 0},
		"Mail system firewall log":    {0, 1},
		askQuestion:                   {0.9, 0.1},
	}
	cat, err := catalog.New(context.Background(), []catalog.Descriptor{
		{Pattern: "email_user_action_2026*", Description: "Mail system user action log"},
		{Pattern: "email_firewall*", Description: "Mail system firewall log"},
	}, emb, logger.Discard())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	cluster := &schema.Cluster{Name: "primary", URL: es.URL, Timeout: 2 * time.Second}
	reg, err := schema.NewRegistry([]schema.Entry{
		{Pattern: "email_*", Mapping: schema.Mapping{IPFields: []string{"IP"}, TimestampField: "create_date", Cluster: cluster}},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	now := time.Date(2025, 10, 2, 12, 0, 0, 0, time.UTC)
	m := metrics.New()
	orch := pipeline.New(
		catalog.NewResolver(cat, emb, nil, logger.Discard()),
		query.NewBuilder(reg, query.WithClock(func() time.Time { return now }), query.WithLocation(time.UTC)),
		retrieval.NewExecutor(reg, retrieval.NewESSearcher(), logger.Discard()),
		pipeline.WithLogger(logger.Discard()),
		pipeline.WithRecorder(m),
		pipeline.WithTopK(1),
	)

	srv, err := New(cfg, Deps{
		Orchestrator: orch,
		Catalog:      cat,
		Health:       NewHealthChecker(cat, reg, retrieval.NewESSearcher(), nil),
		Metrics:      m,
	}, logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop(context.Background()) })

	return &fixture{srv: srv, handler: srv.Handler(), metrics: m, cat: cat, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta ResponseMeta    `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, into any) ResponseMeta {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("decode data: %v (data %s)", err, env.Data)
		}
	}
	return env.Meta
}

const zeroHits = `{"took":1,"hits":{"total":{"value":0,"relation":"eq"},"hits":[]}}`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %s, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.ReadTimeout)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %s, want /metrics", cfg.MetricsPath)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}, logger.Discard()); err == nil {
		t.Error("New() with no deps should fail")
	}
}

func TestHandleAsk_NoRecords(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	rec := f.do(t, http.MethodPost, "/v1/ask", `{"question":"`+askQuestion+`"}`, "X-Request-ID", "req-42")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var report pipeline.Report
	meta := decodeEnvelope(t, rec, &report)
	if meta.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want req-42", meta.RequestID)
	}
	if report.Outcome != pipeline.OutcomeNoRecords {
		t.Errorf("Outcome = %s, want %s", report.Outcome, pipeline.OutcomeNoRecords)
	}
	if report.Spec.Index != "email_user_action_2026*" {
		t.Errorf("Index = %s", report.Spec.Index)
	}
	if !strings.HasPrefix(report.Summary, "no matching records found") {
		t.Errorf("Summary = %q", report.Summary)
	}
}

func TestHandleAsk_Batch(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	rec := f.do(t, http.MethodPost, "/v1/ask", `{"questions":["`+askQuestion+`",""]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var answers []AnswerResponse
	decodeEnvelope(t, rec, &answers)
	if len(answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(answers))
	}
	if answers[0].Report == nil || answers[0].Error != nil {
		t.Errorf("answer 0 = %+v, want a report", answers[0])
	}
	if answers[1].Error == nil || answers[1].Error.Code != "VALIDATION_ERROR" {
		t.Errorf("answer 1 = %+v, want a validation error", answers[1])
	}
}

func TestHandleAsk_BadRequests(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"question":`, http.StatusBadRequest},
		{"unknown field", `{"question":"x","extra":1}`, http.StatusBadRequest},
		{"both forms", `{"question":"a","questions":["b"]}`, http.StatusBadRequest},
		{"empty question", `{"question":""}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/ask", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleRetrieve(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), http.StatusOK, `{"took":2,"hits":{"total":{"value":1,"relation":"eq"},"hits":[
			{"_source":{"IP":"10.0.0.1","create_date":1759300000}}
		]}}`)

		rec := f.do(t, http.MethodPost, "/v1/retrieve",
			`{"ip":"10.0.0.1","index":"email_firewall*","start_time":"2025-10-01 00:00:00","end_time":"2025-10-01 23:59:59"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var report pipeline.Report
		decodeEnvelope(t, rec, &report)
		if report.Outcome != pipeline.OutcomeFound {
			t.Errorf("Outcome = %s, want found", report.Outcome)
		}
		if !strings.Contains(report.Summary, "| IP | create_date |") {
			t.Errorf("Summary = %q", report.Summary)
		}
	})

	t.Run("invalid time", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
		rec := f.do(t, http.MethodPost, "/v1/retrieve", `{"ip":"10.0.0.1","index":"email_firewall*","start_time":"yesterday"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "INVALID_TIME_FORMAT") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("malformed ip or index", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
		for _, body := range []string{
			`{"ip":"not-an-ip","index":"email_firewall*"}`,
			`{"ip":"10.0.0.1","index":"email_firewall,secret_audit"}`,
		} {
			rec := f.do(t, http.MethodPost, "/v1/retrieve", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", body, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "VALIDATION_ERROR") {
				t.Errorf("%s: body = %s", body, rec.Body.String())
			}
		}
	})

	t.Run("no cluster route", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
		rec := f.do(t, http.MethodPost, "/v1/retrieve", `{"ip":"10.0.0.1","index":"web_access*"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("cluster failure", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), http.StatusUnauthorized, `{"error":{"type":"security_exception","reason":"bad credentials"},"status":401}`)
		rec := f.do(t, http.MethodPost, "/v1/retrieve", `{"ip":"10.0.0.1","index":"email_firewall*"}`)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

func TestHandleResolve(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	rec := f.do(t, http.MethodPost, "/v1/resolve", `{"question":"`+askQuestion+`","top_k":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ResolveResponse
	decodeEnvelope(t, rec, &resp)
	want := []string{"email_user_action_2026*", "email_firewall*"}
	if strings.Join(resp.Patterns, ",") != strings.Join(want, ",") {
		t.Errorf("Patterns = %v, want %v", resp.Patterns, want)
	}
	if len(resp.Matches) != 2 || resp.Matches[0].Score <= resp.Matches[1].Score {
		t.Errorf("Matches = %+v, want descending scores", resp.Matches)
	}
}

func TestHandleSources(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	rec := f.do(t, http.MethodGet, "/v1/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sources []SourceResponse
	decodeEnvelope(t, rec, &sources)
	if len(sources) != 2 || sources[0].Pattern != "email_user_action_2026*" || !sources[0].Usable {
		t.Errorf("sources = %+v", sources)
	}

	rec = f.do(t, http.MethodGet, "/v1/sources/email_firewall*", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var one SourceResponse
	decodeEnvelope(t, rec, &one)
	if one.Description != "Mail system firewall log" {
		t.Errorf("source = %+v", one)
	}

	rec = f.do(t, http.MethodGet, "/v1/sources/nope*", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
	f.do(t, http.MethodPost, "/v1/retrieve", `{"ip":"10.0.0.1","index":"email_firewall*"}`)

	rec := f.do(t, http.MethodGet, "/v1/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var series map[string][]metrics.DataPoint
	decodeEnvelope(t, rec, &series)
	if len(series["retrieval_rate"]) == 0 {
		t.Errorf("series = %+v, want retrieval_rate points", series)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
	f.do(t, http.MethodGet, "/v1/sources", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `path="/v1/sources"`) {
		t.Errorf("metrics output lacks the sources route:\n%s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
	rec := f.do(t, http.MethodGet, "/v1/ask", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestAPIKeyAndRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "s3cret"
	cfg.RateLimit = 1
	f := newFixture(t, cfg, http.StatusOK, zeroHits)

	if rec := f.do(t, http.MethodGet, "/v1/sources", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", rec.Code)
	}

	// Burst is twice the rate.
	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodGet, "/v1/sources", "", "X-API-Key", "s3cret"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodGet, "/v1/sources", "", "X-API-Key", "s3cret"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestHealthChecker(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)
	other := &schema.Cluster{Name: "secondary", URL: "http://unused"}
	reg, err := schema.NewRegistry(append(f.reg.Entries(), schema.Entry{
		Pattern: "web_*",
		Mapping: schema.Mapping{IPFields: []string{"IP"}, TimestampField: "ts", Cluster: other},
	}))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name    string
		down    map[string]bool
		vectors HealthCheckable
		want    string
	}{
		{"all up", nil, nil, StatusHealthy},
		{"one cluster down", map[string]bool{"secondary": true}, nil, StatusDegraded},
		{"all clusters down", map[string]bool{"primary": true, "secondary": true}, nil, StatusUnhealthy},
		{"vector store down", nil, fakeVectors{err: stderrors.New("dial")}, StatusDegraded},
		{"vector store up", nil, fakeVectors{}, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(f.cat, reg, fakePinger{down: tt.down}, tt.vectors)
			got := h.Check(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %s, want %s (components %+v)", got.Status, tt.want, got.Components)
			}
			if _, ok := got.Components["cluster:primary"]; !ok {
				t.Error("missing primary cluster component")
			}
		})
	}
}

func TestHealthChecker_UnusableCatalog(t *testing.T) {
	cat, err := catalog.New(context.Background(), []catalog.Descriptor{
		{Pattern: "a*", Description: "unknown"},
	}, keywordEmbedder{}, logger.Discard())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	got := NewHealthChecker(cat, nil, nil, nil).Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy", got.Status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != StatusHealthy || status.Version != "dev" {
		t.Errorf("status = %+v", status)
	}

	rec = f.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestServeAndStop(t *testing.T) {
	f := newFixture(t, DefaultConfig(), http.StatusOK, zeroHits)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	if !f.srv.Health() {
		t.Error("Health() = false while serving")
	}

	if err := f.srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
