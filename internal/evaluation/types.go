// Package evaluation scores source resolution against labelled questions.
package evaluation

// Case is one labelled question: the patterns an operator expects the
// resolver to propose for it.
type Case struct {
	ID       string   `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Relevant []string `json:"relevant" yaml:"relevant"`
}

// Result contains the metrics for a single case.
type Result struct {
	ID        string          `json:"id"`
	Question  string          `json:"question"`
	Ranked    []string        `json:"ranked"`
	FirstHit  int             `json:"first_hit"` // 1-based rank of the first relevant pattern, 0 = none
	NDCG      map[int]float64 `json:"ndcg"`
	Recall    map[int]float64 `json:"recall"`
	Precision map[int]float64 `json:"precision"`
	MRR       float64         `json:"mrr"`
	AP        float64         `json:"ap"`
}

// Summary aggregates metrics across cases.
type Summary struct {
	CaseCount     int             `json:"case_count"`
	Misses        int             `json:"misses"` // cases with no relevant pattern ranked
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanMRR       float64         `json:"mean_mrr"`
	MAP           float64         `json:"map"`
}

// Report is a full evaluation run.
type Report struct {
	Ks      []int     `json:"ks"`
	Results []*Result `json:"results"`
	Summary *Summary  `json:"summary"`
}
