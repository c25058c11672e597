package query

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/schema"
)

type fakeSchemas map[string]schema.Mapping

func (f fakeSchemas) Lookup(index string) schema.Mapping {
	if m, ok := f[index]; ok {
		return m
	}
	return schema.DefaultMapping()
}

var testSchemas = fakeSchemas{
	"email_firewall*":         {IPFields: []string{"srcIP", "dstIP"}, TimestampField: "create_date"},
	"email_user_action_2026*": {IPFields: []string{"IP"}, TimestampField: "create_date"},
}

var fixedNow = time.Date(2025, 10, 2, 12, 30, 0, 0, time.UTC)

func newTestBuilder(opts ...Option) *Builder {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewBuilder(testSchemas, opts...)
}

func rangeBounds(t *testing.T, q *Query) (int64, int64) {
	t.Helper()
	r := q.RangeClause()["range"].(map[string]any)[q.TimestampField].(map[string]any)
	gte, err := strconv.ParseInt(r["gte"].(string), 10, 64)
	if err != nil {
		t.Fatalf("gte: %v", err)
	}
	lte, err := strconv.ParseInt(r["lte"].(string), 10, 64)
	if err != nil {
		t.Fatalf("lte: %v", err)
	}
	if r["format"] != "epoch_second" {
		t.Errorf("format = %v, want epoch_second", r["format"])
	}
	return gte, lte
}

func TestBuild_DefaultWindow(t *testing.T) {
	q, err := newTestBuilder().Build(Spec{IP: "10.0.0.1", Index: "email_user_action_2026*"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	gte, lte := rangeBounds(t, q)
	if lte-gte != 3600 {
		t.Errorf("window = %d seconds, want 3600", lte-gte)
	}
	if lte != fixedNow.Unix() {
		t.Errorf("lte = %d, want %d", lte, fixedNow.Unix())
	}
}

func TestBuild_DefaultWindowUsesRealClock(t *testing.T) {
	before := time.Now().Unix()
	q, err := NewBuilder(testSchemas).Build(Spec{IP: "10.0.0.1", Index: "x*"})
	after := time.Now().Unix()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	gte, lte := rangeBounds(t, q)
	if lte-gte != 3600 {
		t.Errorf("window = %d seconds, want 3600", lte-gte)
	}
	if lte < before || lte > after {
		t.Errorf("lte = %d, want within [%d, %d]", lte, before, after)
	}
}

func TestBuild_PartialDefaults(t *testing.T) {
	b := newTestBuilder()

	q, err := b.Build(Spec{IP: "1.2.3.4", Index: "x*", StartTime: "2025-10-02 00:00:00"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	gte, lte := rangeBounds(t, q)
	if gte != time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC).Unix() {
		t.Errorf("gte = %d", gte)
	}
	if lte != fixedNow.Unix() {
		t.Errorf("lte = %d, want now", lte)
	}

	q, err = b.Build(Spec{IP: "1.2.3.4", Index: "x*", EndTime: "2025-10-02 12:00:00"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	gte, _ = rangeBounds(t, q)
	if gte != fixedNow.Add(-time.Hour).Unix() {
		t.Errorf("gte = %d, want now-1h", gte)
	}
}

func TestBuild_TimeLayouts(t *testing.T) {
	dayStart := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC).Unix()
	dayEnd := time.Date(2025, 10, 1, 23, 59, 59, 0, time.UTC).Unix()

	tests := []struct {
		name      string
		start     string
		end       string
		wantStart int64
		wantEnd   int64
	}{
		{"date time", "2025-10-01 00:00:00", "2025-10-01 23:59:59", dayStart, dayEnd},
		{"bare dates cover the day", "2025-10-01", "2025-10-01", dayStart, dayEnd},
		{"iso without zone", "2025-10-01T00:00:00", "2025-10-01T23:59:59", dayStart, dayEnd},
		{"rfc3339 with offset", "2025-10-01T08:00:00+08:00", "2025-10-01T23:59:59Z", dayStart, dayEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := newTestBuilder().Build(Spec{IP: "1.1.1.1", Index: "x*", StartTime: tt.start, EndTime: tt.end})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			gte, lte := rangeBounds(t, q)
			if gte != tt.wantStart {
				t.Errorf("gte = %d, want %d", gte, tt.wantStart)
			}
			if lte != tt.wantEnd {
				t.Errorf("lte = %d, want %d", lte, tt.wantEnd)
			}
		})
	}
}

func TestBuild_Location(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	q, err := newTestBuilder(WithLocation(shanghai)).Build(Spec{
		IP: "1.1.1.1", Index: "x*", StartTime: "2025-10-01 08:00:00", EndTime: "2025-10-01 09:00:00",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	gte, _ := rangeBounds(t, q)
	if want := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC).Unix(); gte != want {
		t.Errorf("gte = %d, want %d", gte, want)
	}
}

func TestBuild_DateOnlyEndAcrossDST(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	tests := []struct {
		name    string
		day     string
		wantGTE time.Time
		wantLTE time.Time
	}{
		{
			name:    "fall back day has 25 hours",
			day:     "2025-11-02",
			wantGTE: time.Date(2025, 11, 2, 4, 0, 0, 0, time.UTC),
			wantLTE: time.Date(2025, 11, 3, 4, 59, 59, 0, time.UTC),
		},
		{
			name:    "spring forward day has 23 hours",
			day:     "2025-03-09",
			wantGTE: time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC),
			wantLTE: time.Date(2025, 3, 10, 3, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := newTestBuilder(WithLocation(newYork)).Build(Spec{
				IP: "1.1.1.1", Index: "x*", StartTime: tt.day, EndTime: tt.day,
			})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			gte, lte := rangeBounds(t, q)
			if gte != tt.wantGTE.Unix() {
				t.Errorf("gte = %v, want %v", time.Unix(gte, 0).UTC(), tt.wantGTE)
			}
			if lte != tt.wantLTE.Unix() {
				t.Errorf("lte = %v, want %v", time.Unix(lte, 0).UTC(), tt.wantLTE)
			}
			if got := q.End.Format(LayoutDateTime); got != tt.day+" 23:59:59" {
				t.Errorf("End = %s, want %s 23:59:59", got, tt.day)
			}
		})
	}
}

func TestBuild_InvalidTimeFormat(t *testing.T) {
	tests := []struct {
		name  string
		spec  Spec
		field string
	}{
		{"slashes", Spec{IP: "1.1.1.1", Index: "x*", StartTime: "2025/10/01"}, "start_time"},
		{"garbage end", Spec{IP: "1.1.1.1", Index: "x*", EndTime: "yesterday"}, "end_time"},
		{"bad month", Spec{IP: "1.1.1.1", Index: "x*", StartTime: "2025-13-01 00:00:00"}, "start_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestBuilder().Build(tt.spec)
			if !errors.IsInvalidTimeFormat(err) {
				t.Fatalf("Build() error = %v, want INVALID_TIME_FORMAT", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %s", err, tt.field)
			}
		})
	}
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing ip", Spec{Index: "x*"}},
		{"missing index", Spec{IP: "1.1.1.1"}},
		{"ip not an address", Spec{IP: "not-an-ip", Index: "x*"}},
		{"ip with port", Spec{IP: "10.0.0.1:8080", Index: "x*"}},
		{"comma index list", Spec{IP: "1.1.1.1", Index: "email_firewall,secret_audit"}},
		{"wildcard then comma", Spec{IP: "1.1.1.1", Index: "email_firewall*,secret_audit"}},
		{"index with path", Spec{IP: "1.1.1.1", Index: "x/_delete_by_query"}},
		{"inverted range", Spec{IP: "1.1.1.1", Index: "x*", StartTime: "2025-10-02", EndTime: "2025-10-01 00:00:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newTestBuilder().Build(tt.spec); !errors.IsValidation(err) {
				t.Errorf("Build() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestIPClause_SingleField(t *testing.T) {
	q, err := newTestBuilder().Build(Spec{IP: "203.0.113.5", Index: "email_user_action_2026*"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := map[string]any{"term": map[string]any{"IP": "203.0.113.5"}}
	if got := q.IPClause(); !reflect.DeepEqual(got, want) {
		t.Errorf("IPClause() = %v, want %v", got, want)
	}
}

func TestIPClause_UnknownIndexUsesDefaultField(t *testing.T) {
	q, err := newTestBuilder().Build(Spec{IP: "203.0.113.5", Index: "brand_new*"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if q.TimestampField != "create_date" {
		t.Errorf("TimestampField = %s, want create_date", q.TimestampField)
	}
	want := map[string]any{"term": map[string]any{"IP": "203.0.113.5"}}
	if got := q.IPClause(); !reflect.DeepEqual(got, want) {
		t.Errorf("IPClause() = %v, want %v", got, want)
	}
}

// matches evaluates an IP clause against a flat document.
func matches(clause map[string]any, doc map[string]string) bool {
	if t, ok := clause["term"].(map[string]any); ok {
		for f, v := range t {
			if doc[f] != v {
				return false
			}
		}
		return true
	}
	b := clause["bool"].(map[string]any)
	hit := 0
	for _, c := range b["should"].([]any) {
		if matches(c.(map[string]any), doc) {
			hit++
		}
	}
	return hit >= b["minimum_should_match"].(int)
}

func TestIPClause_Disjunction(t *testing.T) {
	q, err := newTestBuilder().Build(Spec{IP: "203.0.113.5", Index: "email_firewall*"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	clause := q.IPClause()
	tests := []struct {
		name string
		doc  map[string]string
		want bool
	}{
		{"source matches", map[string]string{"srcIP": "203.0.113.5", "dstIP": "10.0.0.1"}, true},
		{"destination matches", map[string]string{"srcIP": "10.0.0.1", "dstIP": "203.0.113.5"}, true},
		{"both match", map[string]string{"srcIP": "203.0.113.5", "dstIP": "203.0.113.5"}, true},
		{"neither matches", map[string]string{"srcIP": "10.0.0.1", "dstIP": "10.0.0.2"}, false},
		{"other field only", map[string]string{"IP": "203.0.113.5"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(clause, tt.doc); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBody(t *testing.T) {
	q, err := newTestBuilder().Build(Spec{
		IP: "203.0.113.5", Index: "email_firewall*",
		StartTime: "2025-10-01 00:00:00", EndTime: "2025-10-01 23:59:59",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var body struct {
		From  int `json:"from"`
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Must []map[string]json.RawMessage `json:"must"`
			} `json:"bool"`
		} `json:"query"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if body.From != 0 {
		t.Errorf("from = %d, want 0", body.From)
	}
	if body.Size != DefaultMaxSize {
		t.Errorf("size = %d, want %d", body.Size, DefaultMaxSize)
	}
	if len(body.Query.Bool.Must) != 2 {
		t.Fatalf("must has %d clauses, want 2", len(body.Query.Bool.Must))
	}
	if _, ok := body.Query.Bool.Must[0]["bool"]; !ok {
		t.Error("first must clause should be the IP disjunction")
	}
	if _, ok := body.Query.Bool.Must[1]["range"]; !ok {
		t.Error("second must clause should be the range")
	}
	if !strings.Contains(string(data), `"gte":"1759276800"`) {
		t.Errorf("body missing inclusive start bound: %s", data)
	}
	if !strings.Contains(string(data), `"lte":"1759363199"`) {
		t.Errorf("body missing inclusive end bound: %s", data)
	}
}

func TestWithMaxSize(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, DefaultMaxSize},
		{-5, DefaultMaxSize},
		{100, 100},
		{50000, HardMaxSize},
	}

	for _, tt := range tests {
		q, err := newTestBuilder(WithMaxSize(tt.n)).Build(Spec{IP: "1.1.1.1", Index: "x*"})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if q.Size != tt.want {
			t.Errorf("WithMaxSize(%d): Size = %d, want %d", tt.n, q.Size, tt.want)
		}
	}
}

func TestWithWindow(t *testing.T) {
	q, err := newTestBuilder(WithWindow(24 * time.Hour)).Build(Spec{IP: "1.1.1.1", Index: "x*"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	gte, lte := rangeBounds(t, q)
	if lte-gte != 86400 {
		t.Errorf("window = %d, want 86400", lte-gte)
	}
}
