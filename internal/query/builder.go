package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/security"
	"github.com/ricesearch/logscout/internal/schema"
)

// Accepted caller time layouts, tried in order.
const (
	LayoutDateTime = "2006-01-02 15:04:05"
	LayoutDate     = "2006-01-02"
)

var dateTimeLayouts = []string{
	LayoutDateTime,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// SchemaLookup resolves the fields of an index.
type SchemaLookup interface {
	Lookup(index string) schema.Mapping
}

// Builder constructs queries. It is safe for concurrent use.
type Builder struct {
	schemas SchemaLookup
	now     func() time.Time
	loc     *time.Location
	window  time.Duration
	maxSize int
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithLocation sets the zone for caller times that carry none.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithWindow sets the default look-back window.
func WithWindow(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithMaxSize sets the result size cap, clamped to HardMaxSize.
func WithMaxSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxSize = min(n, HardMaxSize)
		}
	}
}

// NewBuilder creates a query builder backed by schemas.
func NewBuilder(schemas SchemaLookup, opts ...Option) *Builder {
	b := &Builder{
		schemas: schemas,
		now:     time.Now,
		loc:     time.UTC,
		window:  DefaultWindow,
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves spec into a query. A missing start defaults to now minus
// the window and a missing end defaults to now. Malformed times fail with
// INVALID_TIME_FORMAT naming the field.
func (b *Builder) Build(spec Spec) (*Query, error) {
	ip := strings.TrimSpace(spec.IP)
	if ip == "" {
		return nil, errors.ValidationError("ip is required")
	}
	if err := security.ValidateIP(ip); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	index := strings.TrimSpace(spec.Index)
	if index == "" {
		return nil, errors.ValidationError("index is required")
	}
	// One index expression per query: a comma list would reach other indices.
	if err := security.ValidateIndexPattern(index); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	now := b.now().In(b.loc)

	start := now.Add(-b.window)
	if s := strings.TrimSpace(spec.StartTime); s != "" {
		t, err := b.parseTime(s, false)
		if err != nil {
			return nil, errors.InvalidTimeFormatError("start_time", spec.StartTime, err)
		}
		start = t
	}

	end := now
	if s := strings.TrimSpace(spec.EndTime); s != "" {
		t, err := b.parseTime(s, true)
		if err != nil {
			return nil, errors.InvalidTimeFormatError("end_time", spec.EndTime, err)
		}
		end = t
	}

	if start.After(end) {
		return nil, errors.ValidationError(fmt.Sprintf("start_time %s is after end_time %s",
			start.Format(LayoutDateTime), end.Format(LayoutDateTime)))
	}

	m := b.schemas.Lookup(index)

	return &Query{
		Index:          index,
		IP:             ip,
		IPFields:       append([]string(nil), m.IPFields...),
		TimestampField: m.TimestampField,
		Start:          start,
		End:            end,
		Size:           b.maxSize,
	}, nil
}

// parseTime accepts a date-time or a bare date. A bare date used as an end
// bound covers the whole calendar day, including DST transition days.
func (b *Builder) parseTime(s string, endOfDay bool) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, b.loc); err == nil {
			return t, nil
		}
	}

	t, err := time.ParseInLocation(LayoutDate, s, b.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %q, RFC3339 or %q", LayoutDateTime, LayoutDate)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t, nil
}
