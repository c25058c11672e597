package server

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/ricesearch/logscout/internal/catalog"
	"github.com/ricesearch/logscout/internal/pipeline"
	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/security"
	"github.com/ricesearch/logscout/internal/query"
)

var errTrailingData = stderrors.New("unexpected data after JSON body")

// ResolveRequest is the JSON body of POST /v1/resolve.
type ResolveRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// ResolveResponse lists the candidate sources, best first.
type ResolveResponse struct {
	Question string          `json:"question"`
	Patterns []string        `json:"patterns"`
	Matches  []catalog.Match `json:"matches"`
}

// AskRequest is the JSON body of POST /v1/ask. Exactly one of Question and
// Questions must be set.
type AskRequest struct {
	Question  string   `json:"question,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// AnswerResponse is one entry of a batch ask.
type AnswerResponse struct {
	Question string                `json:"question"`
	Report   *pipeline.Report      `json:"report,omitempty"`
	Error    *errors.ErrorResponse `json:"error,omitempty"`
}

// SourceResponse describes one catalog source.
type SourceResponse struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Usable      bool   `json:"usable"`
}

// maxBatchQuestions bounds POST /v1/ask batches.
const maxBatchQuestions = 50

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	l := s.log.WithContext(r.Context()).WithError(err)
	if errors.CodeOf(err) == "" {
		l.Error("Request failed", "path", r.URL.Path)
	} else {
		l.Debug("Request rejected", "path", r.URL.Path, "code", errors.CodeOf(err))
	}
	errors.WriteError(w, err)
}

func badBody(err error) error {
	return errors.InvalidRequestError("invalid request body: " + err.Error())
}

// HandleResolve handles POST /v1/resolve.
func (s *Server) HandleResolve(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req ResolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, badBody(err))
		return
	}

	question := security.SanitizeQuestion(req.Question)
	matches, err := s.orchestrator.Resolve(r.Context(), question, req.TopK)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	patterns := make([]string, len(matches))
	for i, m := range matches {
		patterns[i] = m.Pattern
	}
	if matches == nil {
		matches = []catalog.Match{}
	}

	writeData(w, r, started, ResolveResponse{
		Question: question,
		Patterns: patterns,
		Matches:  matches,
	})
}

// HandleRetrieve handles POST /v1/retrieve.
func (s *Server) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var spec query.Spec
	if err := decodeBody(w, r, &spec); err != nil {
		s.fail(w, r, badBody(err))
		return
	}

	report, err := s.orchestrator.Retrieve(r.Context(), spec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, started, report)
}

// HandleAsk handles POST /v1/ask.
func (s *Server) HandleAsk(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, badBody(err))
		return
	}

	switch {
	case req.Question != "" && len(req.Questions) > 0:
		s.fail(w, r, errors.ValidationError("set either question or questions, not both"))
		return
	case len(req.Questions) > maxBatchQuestions:
		s.fail(w, r, errors.ValidationError("too many questions in one batch"))
		return
	case len(req.Questions) > 0:
		s.askAll(w, r, started, req.Questions)
		return
	}

	report, err := s.orchestrator.Ask(r.Context(), req.Question)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, r, started, report)
}

func (s *Server) askAll(w http.ResponseWriter, r *http.Request, started time.Time, questions []string) {
	answers, err := s.orchestrator.AskAll(r.Context(), questions)
	if err != nil {
		s.fail(w, r, errors.TimeoutError("batch ask"))
		return
	}

	out := make([]AnswerResponse, len(answers))
	for i, a := range answers {
		out[i] = AnswerResponse{Question: a.Question, Report: a.Report}
		if a.Err != nil {
			out[i].Error = errorBody(a.Err)
		}
	}
	writeData(w, r, started, out)
}

func errorBody(err error) *errors.ErrorResponse {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return &errors.ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		}
	}
	return &errors.ErrorResponse{Error: "internal server error", Code: errors.CodeInternal}
}

// HandleSources handles GET /v1/sources.
func (s *Server) HandleSources(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	sources := s.catalog.Sources()
	out := make([]SourceResponse, len(sources))
	for i, src := range sources {
		out[i] = sourceResponse(src)
	}
	writeData(w, r, started, out)
}

// HandleSource handles GET /v1/sources/{pattern}.
func (s *Server) HandleSource(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	pattern := r.PathValue("pattern")
	src, ok := s.catalog.Get(pattern)
	if !ok {
		s.fail(w, r, errors.NotFoundError("log source "+pattern))
		return
	}
	writeData(w, r, started, sourceResponse(src))
}

func sourceResponse(src catalog.LogSource) SourceResponse {
	return SourceResponse{
		Pattern:     src.Pattern,
		Description: src.Description,
		Usable:      src.Usable(),
	}
}

// HandleHistory handles GET /v1/history.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if s.metrics == nil {
		s.fail(w, r, errors.ServiceUnavailableError("metrics"))
		return
	}
	writeData(w, r, started, s.metrics.History.Snapshot())
}
