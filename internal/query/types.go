// Package query turns an (IP, index, time range) request into a structured
// boolean search query for the cluster that owns the index.
package query

import (
	"encoding/json"
	"strconv"
	"time"
)

// Default query settings.
const (
	DefaultWindow  = time.Hour
	DefaultMaxSize = 5000

	// HardMaxSize is the engine's result window ceiling.
	HardMaxSize = 10000
)

// Spec is a retrieval request as produced by the rewrite stage.
// Empty StartTime or EndTime selects the default window.
type Spec struct {
	IP        string `json:"ip"`
	Index     string `json:"index"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// Query is a resolved IP + time range filter against one index pattern.
type Query struct {
	Index          string
	IP             string
	IPFields       []string
	TimestampField string
	Start          time.Time
	End            time.Time
	Size           int
}

// IPClause returns a term clause for a single field, or a bool should
// across every field when the IP may appear in several of them.
func (q *Query) IPClause() map[string]any {
	if len(q.IPFields) == 1 {
		return term(q.IPFields[0], q.IP)
	}

	should := make([]any, 0, len(q.IPFields))
	for _, f := range q.IPFields {
		should = append(should, term(f, q.IP))
	}
	return map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

// RangeClause returns the inclusive timestamp range in epoch seconds.
func (q *Query) RangeClause() map[string]any {
	return map[string]any{
		"range": map[string]any{
			q.TimestampField: map[string]any{
				"gte":    strconv.FormatInt(q.Start.Unix(), 10),
				"lte":    strconv.FormatInt(q.End.Unix(), 10),
				"format": "epoch_second",
			},
		},
	}
}

// Body returns the full search request body.
func (q *Query) Body() map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{q.IPClause(), q.RangeClause()},
			},
		},
		"from": 0,
		"size": q.Size,
	}
}

// MarshalJSON renders the search request body.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Body())
}

func term(field, value string) map[string]any {
	return map[string]any{
		"term": map[string]any{field: value},
	}
}
