package retrieval

import "time"

// Result is the immutable outcome of one retrieval.
type Result struct {
	Index   string `json:"index"`
	Cluster string `json:"cluster"`

	// HitCount is the number of documents returned, at most the size cap.
	HitCount int `json:"hit_count"`

	// Total is the cluster's match count, which may exceed HitCount.
	Total int64 `json:"total"`

	Records []*Record     `json:"records"`
	Took    time.Duration `json:"took"`
}

// Empty reports whether the retrieval matched nothing. Zero hits is a valid
// outcome, not a failure.
func (r *Result) Empty() bool {
	return r.HitCount == 0
}

// Truncated reports whether the size cap cut off matching documents.
func (r *Result) Truncated() bool {
	return r.Total > int64(r.HitCount)
}

// Table returns the normalized table of the records.
func (r *Result) Table() *Table {
	return Normalize(r.Records)
}
