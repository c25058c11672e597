package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ricesearch/logscout/internal/schema"
)

// Hits is the raw outcome of a search request.
type Hits struct {
	Total   int64
	Sources []json.RawMessage
	Took    time.Duration
}

// Searcher sends a search body to an index on a cluster.
type Searcher interface {
	Search(ctx context.Context, cluster *schema.Cluster, index string, body []byte) (*Hits, error)
}

// StatusError is a non-2xx response from a cluster.
type StatusError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("cluster returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Type != "" {
		msg += ": " + e.Type
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ESSearcher talks to Elasticsearch clusters with basic authentication.
// Clients are created on first use and reused per cluster.
type ESSearcher struct {
	mu        sync.Mutex
	clients   map[string]*elasticsearch.Client
	transport http.RoundTripper
}

// ESOption configures an ESSearcher.
type ESOption func(*ESSearcher)

// WithTransport sets the HTTP transport used by every cluster client.
func WithTransport(rt http.RoundTripper) ESOption {
	return func(s *ESSearcher) { s.transport = rt }
}

// NewESSearcher creates a searcher.
func NewESSearcher(opts ...ESOption) *ESSearcher {
	s := &ESSearcher{clients: make(map[string]*elasticsearch.Client)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure ESSearcher implements Searcher.
var _ Searcher = (*ESSearcher)(nil)

func (s *ESSearcher) client(cl *schema.Cluster) (*elasticsearch.Client, error) {
	key := cl.Name + "\x00" + cl.URL

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[key]; ok {
		return c, nil
	}

	c, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{cl.URL},
		Username:     cl.Username,
		Password:     cl.Password,
		Transport:    s.transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create client for cluster %s: %w", cl.Name, err)
	}
	s.clients[key] = c
	return c, nil
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Search implements Searcher. The cluster timeout bounds the request.
func (s *ESSearcher) Search(ctx context.Context, cl *schema.Cluster, index string, body []byte) (*Hits, error) {
	es, err := s.client(cl)
	if err != nil {
		return nil, err
	}

	if cl.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cl.Timeout)
		defer cancel()
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, readStatusError(res.StatusCode, res.Body)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := &Hits{
		Total:   parsed.Hits.Total.Value,
		Sources: make([]json.RawMessage, 0, len(parsed.Hits.Hits)),
		Took:    time.Duration(parsed.Took) * time.Millisecond,
	}
	for _, h := range parsed.Hits.Hits {
		hits.Sources = append(hits.Sources, h.Source)
	}
	return hits, nil
}

// Ping checks that the cluster answers.
func (s *ESSearcher) Ping(ctx context.Context, cl *schema.Cluster) error {
	es, err := s.client(cl)
	if err != nil {
		return err
	}

	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return readStatusError(res.StatusCode, res.Body)
	}
	return nil
}

func readStatusError(status int, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))

	se := &StatusError{StatusCode: status}
	var parsed errorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Type != "" {
		se.Type = parsed.Error.Type
		se.Reason = parsed.Error.Reason
	} else {
		se.Reason = strings.TrimSpace(string(data))
	}
	return se
}
