package evaluation

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/pkg/errors"
)

// DefaultKs are the cut-offs reported when none are given.
var DefaultKs = []int{1, 3, 5}

// Resolver ranks catalog sources for a question.
type Resolver interface {
	ResolveScored(ctx context.Context, question string, topK int) ([]catalog.Match, error)
}

// Evaluator runs labelled cases through a resolver.
type Evaluator struct {
	resolver Resolver
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(r Resolver) *Evaluator {
	return &Evaluator{resolver: r}
}

// LoadCases reads a YAML list of cases.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing cases: %w", err)
	}
	return cases, validate(cases)
}

func validate(cases []Case) error {
	if len(cases) == 0 {
		return errors.ValidationError("no evaluation cases")
	}
	for i, c := range cases {
		name := c.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		if c.Question == "" {
			return errors.ValidationError(fmt.Sprintf("case %s has no question", name))
		}
		if len(c.Relevant) == 0 {
			return errors.ValidationError(fmt.Sprintf("case %s lists no relevant pattern", name))
		}
	}
	return nil
}

// Evaluate ranks every case to depth max(ks) and scores it. Cases run
// sequentially; the first resolver error aborts the run.
func (e *Evaluator) Evaluate(ctx context.Context, cases []Case, ks []int) (*Report, error) {
	if err := validate(cases); err != nil {
		return nil, err
	}
	ks = normalizeKs(ks)
	depth := ks[len(ks)-1]

	report := &Report{Ks: ks, Results: make([]*Result, 0, len(cases))}
	for _, c := range cases {
		res, err := e.evaluateCase(ctx, c, ks, depth)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.ID, err)
		}
		report.Results = append(report.Results, res)
	}
	report.Summary = Summarize(report.Results)
	return report, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, c Case, ks []int, depth int) (*Result, error) {
	matches, err := e.resolver.ResolveScored(ctx, c.Question, depth)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(c.Relevant))
	for _, p := range c.Relevant {
		want[p] = true
	}

	ranked := make([]string, len(matches))
	hits := make([]bool, len(matches))
	for i, m := range matches {
		ranked[i] = m.Pattern
		hits[i] = want[m.Pattern]
	}

	res := &Result{
		ID:        c.ID,
		Question:  c.Question,
		Ranked:    ranked,
		FirstHit:  firstHit(hits),
		NDCG:      make(map[int]float64, len(ks)),
		Recall:    make(map[int]float64, len(ks)),
		Precision: make(map[int]float64, len(ks)),
		MRR:       MRR(hits),
		AP:        AveragePrecision(hits, len(want)),
	}
	for _, k := range ks {
		res.NDCG[k] = NDCG(hits, len(want), k)
		res.Recall[k] = Recall(hits, len(want), k)
		res.Precision[k] = Precision(hits, k)
	}
	return res, nil
}

// normalizeKs sorts, deduplicates and drops non-positive cut-offs.
func normalizeKs(ks []int) []int {
	out := make([]int, 0, len(ks))
	seen := make(map[int]bool)
	for _, k := range ks {
		if k > 0 && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return append([]int(nil), DefaultKs...)
	}
	sort.Ints(out)
	return out
}

// Summarize aggregates results across cases.
func Summarize(results []*Result) *Summary {
	summary := &Summary{
		CaseCount:     len(results),
		MeanNDCG:      make(map[int]float64),
		MeanRecall:    make(map[int]float64),
		MeanPrecision: make(map[int]float64),
	}
	if len(results) == 0 {
		return summary
	}

	for _, r := range results {
		if r.FirstHit == 0 {
			summary.Misses++
		}
		summary.MeanMRR += r.MRR
		summary.MAP += r.AP
		for k, v := range r.NDCG {
			summary.MeanNDCG[k] += v
		}
		for k, v := range r.Recall {
			summary.MeanRecall[k] += v
		}
		for k, v := range r.Precision {
			summary.MeanPrecision[k] += v
		}
	}

	n := float64(len(results))
	summary.MeanMRR /= n
	summary.MAP /= n
	for k := range summary.MeanNDCG {
		summary.MeanNDCG[k] /= n
	}
	for k := range summary.MeanRecall {
		summary.MeanRecall[k] /= n
	}
	for k := range summary.MeanPrecision {
		summary.MeanPrecision[k] /= n
	}
	return summary
}
