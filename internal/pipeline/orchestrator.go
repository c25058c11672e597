// Package pipeline sequences resolution, rewriting, retrieval and
// summarization for a single question.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/logscout/internal/bus"
	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
	"github.com/ricesearch/logscout/internal/pkg/security"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/retrieval"
)

// Outcome classifies a finished pipeline run.
type Outcome string

const (
	// OutcomeNoIndexResolved means no log source matched the question.
	OutcomeNoIndexResolved Outcome = "no_index_resolved"

	// OutcomeNoRecords means the retrieval ran and matched nothing.
	OutcomeNoRecords Outcome = "no_records"

	// OutcomeFound means at least one record was retrieved.
	OutcomeFound Outcome = "found"
)

// NoIndexMessage is the summary of a run whose question resolved to nothing.
const NoIndexMessage = "no log source matched the question"

// Resolver narrows a question to candidate index patterns.
type Resolver interface {
	ResolveScored(ctx context.Context, question string, topK int) ([]catalog.Match, error)
}

// QueryBuilder turns a retrieval request into a query.
type QueryBuilder interface {
	Build(spec query.Spec) (*query.Query, error)
}

// Executor runs a query against the cluster owning its index.
type Executor interface {
	Execute(ctx context.Context, q *query.Query, index string) (*retrieval.Result, error)
}

// Recorder receives pipeline measurements.
type Recorder interface {
	RecordResolve(latency time.Duration, patterns int)
	RecordRetrieval(latency time.Duration, hitCount int, err error)
	RecordNoIndex()
}

// Report is the outcome of one pipeline run.
type Report struct {
	ID         string            `json:"id"`
	Question   string            `json:"question,omitempty"`
	Candidates []catalog.Match   `json:"candidates,omitempty"`
	Spec       query.Spec        `json:"spec"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Outcome    Outcome           `json:"outcome"`
	Result     *retrieval.Result `json:"result,omitempty"`
	Summary    string            `json:"summary"`
	Took       time.Duration     `json:"took"`
}

// Answer pairs a question with its report or error.
type Answer struct {
	Question string
	Report   *Report
	Err      error
}

// Orchestrator runs the stages strictly in sequence. It holds no per-run
// state and is safe for concurrent use.
type Orchestrator struct {
	resolver   Resolver
	builder    QueryBuilder
	executor   Executor
	rewriter   Rewriter
	summarizer Summarizer
	bus        bus.Bus
	recorder   Recorder
	log        *logger.Logger
	topK       int
	parallel   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRewriter replaces the built-in PatternRewriter.
func WithRewriter(r Rewriter) Option {
	return func(o *Orchestrator) { o.rewriter = r }
}

// WithSummarizer replaces the built-in TableSummarizer.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// WithBus publishes pipeline events on b.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithRecorder reports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithTopK sets how many candidate sources a question resolves to.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithParallelism bounds how many questions AskAll runs at once.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// New creates an orchestrator.
func New(resolver Resolver, builder QueryBuilder, executor Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:   resolver,
		builder:    builder,
		executor:   executor,
		rewriter:   PatternRewriter{},
		summarizer: TableSummarizer{},
		bus:        bus.NopBus{},
		log:        logger.Default(),
		topK:       catalog.DefaultTopK,
		parallel:   4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve returns the candidate sources for question.
func (o *Orchestrator) Resolve(ctx context.Context, question string, topK int) ([]catalog.Match, error) {
	return o.resolve(ctx, uuid.NewString(), question, topK)
}

func (o *Orchestrator) resolve(ctx context.Context, id, question string, topK int) ([]catalog.Match, error) {
	if err := security.ValidateQuestion(question); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if topK <= 0 {
		topK = o.topK
	}
	if err := security.ValidateTopK(topK); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	start := time.Now()
	matches, err := o.resolver.ResolveScored(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	if o.recorder != nil {
		o.recorder.RecordResolve(time.Since(start), len(matches))
	}

	patterns := make([]string, len(matches))
	for i, m := range matches {
		patterns[i] = m.Pattern
	}
	o.publish(ctx, bus.TopicResolveCompleted, "resolve.completed", id, bus.ResolvePayload{
		Question: security.SanitizeForLog(question),
		TopK:     topK,
		Patterns: patterns,
	})

	o.log.WithContext(ctx).Debug("Question resolved",
		"run", id,
		"question", security.SanitizeForLog(question),
		"patterns", patterns,
	)
	return matches, nil
}

// Ask resolves question, rewrites it into a retrieval request against the
// resolved sources, retrieves and summarizes. A question that resolves to
// no source returns OutcomeNoIndexResolved without error.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Report, error) {
	started := time.Now()
	id := uuid.NewString()
	question = security.SanitizeQuestion(question)

	matches, err := o.resolve(ctx, id, question, o.topK)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		if o.recorder != nil {
			o.recorder.RecordNoIndex()
		}
		return &Report{
			ID:       id,
			Question: question,
			Outcome:  OutcomeNoIndexResolved,
			Summary:  NoIndexMessage,
			Took:     time.Since(started),
		}, nil
	}

	hints := make([]string, len(matches))
	for i, m := range matches {
		hints[i] = m.Pattern
	}

	spec, err := o.rewriter.Rewrite(ctx, question, hints)
	if err != nil {
		return nil, err
	}

	report, err := o.retrieve(ctx, id, spec)
	if err != nil {
		return nil, err
	}
	report.Question = question
	report.Candidates = matches
	report.Took = time.Since(started)
	return report, nil
}

// Retrieve runs a structured request directly, skipping resolution.
func (o *Orchestrator) Retrieve(ctx context.Context, spec query.Spec) (*Report, error) {
	return o.retrieve(ctx, uuid.NewString(), spec)
}

func (o *Orchestrator) retrieve(ctx context.Context, id string, spec query.Spec) (*Report, error) {
	started := time.Now()

	q, err := o.builder.Build(spec)
	if err != nil {
		o.retrievalFailed(ctx, id, spec, nil, started, err)
		return nil, err
	}

	res, err := o.executor.Execute(ctx, q, q.Index)
	if err != nil {
		o.retrievalFailed(ctx, id, spec, q, started, err)
		return nil, err
	}

	if o.recorder != nil {
		o.recorder.RecordRetrieval(time.Since(started), res.HitCount, nil)
	}
	o.publish(ctx, bus.TopicRetrievalCompleted, "retrieval.completed", id, bus.RetrievalPayload{
		IP:         q.IP,
		Index:      q.Index,
		Cluster:    res.Cluster,
		Start:      q.Start.Unix(),
		End:        q.End.Unix(),
		HitCount:   res.HitCount,
		DurationMs: time.Since(started).Milliseconds(),
	})

	outcome := OutcomeFound
	if res.Empty() {
		outcome = OutcomeNoRecords
	}

	summary, err := o.summarizer.Summarize(ctx, q.IP, res)
	if err != nil {
		o.log.WithContext(ctx).WithError(err).Warn("Summarizer failed, using table summary", "run", id)
		summary = retrieval.Summary(res, q.IP)
	}

	return &Report{
		ID:      id,
		Spec:    spec,
		Start:   q.Start,
		End:     q.End,
		Outcome: outcome,
		Result:  res,
		Summary: summary,
		Took:    time.Since(started),
	}, nil
}

func (o *Orchestrator) retrievalFailed(ctx context.Context, id string, spec query.Spec, q *query.Query, started time.Time, err error) {
	if o.recorder != nil {
		o.recorder.RecordRetrieval(time.Since(started), 0, err)
	}

	payload := bus.RetrievalPayload{
		IP:         spec.IP,
		Index:      spec.Index,
		DurationMs: time.Since(started).Milliseconds(),
		ErrorCode:  errors.CodeOf(err),
		Error:      err.Error(),
	}
	if q != nil {
		payload.Start = q.Start.Unix()
		payload.End = q.End.Unix()
	}
	o.publish(ctx, bus.TopicRetrievalFailed, "retrieval.failed", id, payload)
}

// AskAll answers independent questions concurrently. One failing question
// does not stop the others; each Answer carries its own error.
func (o *Orchestrator) AskAll(ctx context.Context, questions []string) ([]Answer, error) {
	answers := make([]Answer, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallel)

	for i, question := range questions {
		answers[i].Question = question
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				answers[i].Err = err
				return err
			}
			answers[i].Report, answers[i].Err = o.Ask(gctx, question)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return answers, err
	}
	return answers, nil
}

func (o *Orchestrator) publish(ctx context.Context, topic, eventType, id string, payload any) {
	if err := o.bus.Publish(ctx, topic, bus.NewEvent(eventType, "pipeline", id, payload)); err != nil {
		o.log.WithContext(ctx).WithError(err).Warn("Failed to publish event", "topic", topic)
	}
}
