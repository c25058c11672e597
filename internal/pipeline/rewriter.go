package pipeline

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/query"
	"github.com/ricesearch/logscout/internal/retrieval"
)

// Rewriter turns a question and its resolved index hints, best first, into
// a structured retrieval request.
type Rewriter interface {
	Rewrite(ctx context.Context, question string, hints []string) (query.Spec, error)
}

// Summarizer turns a retrieval result into a report for the operator.
type Summarizer interface {
	Summarize(ctx context.Context, ip string, res *retrieval.Result) (string, error)
}

var (
	ipv4Pattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	dateTimePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})\b`)
	datePattern     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	cjkDatePattern  = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
)

// PatternRewriter extracts the IP and time bounds from the question text
// and targets the best resolved index. It stands in for a language-model
// rewrite stage.
//
// Recognized time forms, in order of preference: two or one
// "YYYY-MM-DD HH:MM:SS", then two or one "YYYY-MM-DD" or "YYYY年M月D日".
// A single date covers that whole day. No time leaves the window to the
// query builder's default.
type PatternRewriter struct{}

// Rewrite implements Rewriter.
func (PatternRewriter) Rewrite(_ context.Context, question string, hints []string) (query.Spec, error) {
	if len(hints) == 0 {
		return query.Spec{}, errors.New(errors.CodeNoIndexResolved, "no index resolved for question")
	}

	ip, ok := extractIP(question)
	if !ok {
		return query.Spec{}, errors.ValidationError("no IP address found in question")
	}

	spec := query.Spec{IP: ip, Index: hints[0]}
	spec.StartTime, spec.EndTime = extractWindow(question)
	return spec, nil
}

func extractIP(text string) (string, bool) {
	for _, candidate := range ipv4Pattern.FindAllString(text, -1) {
		if addr, err := netip.ParseAddr(candidate); err == nil {
			return addr.String(), true
		}
	}
	for _, token := range strings.FieldsFunc(text, isTokenSeparator) {
		if !strings.Contains(token, ":") {
			continue
		}
		if addr, err := netip.ParseAddr(strings.TrimRight(token, ".")); err == nil && addr.Is6() {
			return addr.String(), true
		}
	}
	return "", false
}

func isTokenSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', ';', '(', ')', '[', ']', '"', '\'', '?', '!', '，', '。', '？', '：':
		return true
	}
	return false
}

// extractWindow finds the time bounds of a question. A lone date covers
// that day. A lone timestamp is only a start bound, leaving the end to the
// builder default of now.
func extractWindow(text string) (start, end string) {
	if m := dateTimePattern.FindAllStringSubmatch(text, 2); len(m) > 0 {
		start = m[0][1] + " " + m[0][2]
		if len(m) == 2 {
			end = m[1][1] + " " + m[1][2]
		}
		return start, end
	}

	dates := collectDates(text)
	switch len(dates) {
	case 0:
		return "", ""
	case 1:
		return dates[0] + " 00:00:00", dates[0] + " 23:59:59"
	default:
		return dates[0] + " 00:00:00", dates[1] + " 23:59:59"
	}
}

// collectDates returns up to two valid calendar dates in text order.
func collectDates(text string) []string {
	type found struct {
		pos  int
		date string
	}
	var all []found

	for _, loc := range datePattern.FindAllStringIndex(text, -1) {
		d := text[loc[0]:loc[1]]
		if _, err := time.Parse(query.LayoutDate, d); err == nil {
			all = append(all, found{loc[0], d})
		}
	}
	for _, m := range cjkDatePattern.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		date := fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
		if _, err := time.Parse(query.LayoutDate, date); err == nil {
			all = append(all, found{m[0], date})
		}
	}

	// Insertion sort by position; at most a handful of matches.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].pos < all[j-1].pos; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	dates := make([]string, 0, 2)
	for _, f := range all {
		if len(dates) == 2 {
			break
		}
		dates = append(dates, f.date)
	}
	return dates
}

// TableSummarizer renders the count summary with a Markdown table.
type TableSummarizer struct{}

// Summarize implements Summarizer.
func (TableSummarizer) Summarize(_ context.Context, ip string, res *retrieval.Result) (string, error) {
	return retrieval.Summary(res, ip), nil
}
