// Package schema maps index patterns to the fields that carry the IP address
// and the timestamp, and to the cluster that owns the index.
package schema

import (
	"fmt"
	"path"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/errors"
)

// Fallback field names used when no registered pattern matches.
const (
	DefaultIPField        = "IP"
	DefaultTimestampField = "create_date"
)

// Cluster is a search cluster endpoint.
type Cluster struct {
	Name     string
	URL      string
	Username string
	Password string
	Timeout  time.Duration // per request, 0 = none
}

// Mapping describes one index schema.
type Mapping struct {
	// IPFields lists the fields that may hold the IP of interest, in order.
	IPFields []string

	// TimestampField is the (possibly dotted) field used for range filtering.
	TimestampField string

	// Cluster is the owning cluster. Nil on the default mapping.
	Cluster *Cluster
}

// Entry pairs a glob pattern with its mapping.
type Entry struct {
	Pattern string
	Mapping Mapping
}

// Registry is an ordered, read-only table of schema entries.
// Registration order is priority: the first matching pattern wins.
type Registry struct {
	entries []Entry
}

// DefaultMapping returns the mapping used for unknown indices.
func DefaultMapping() Mapping {
	return Mapping{
		IPFields:       []string{DefaultIPField},
		TimestampField: DefaultTimestampField,
	}
}

// NewRegistry builds a registry from entries in priority order.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{entries: make([]Entry, 0, len(entries))}
	for i, e := range entries {
		if e.Pattern == "" {
			return nil, errors.ValidationError(fmt.Sprintf("schema entry %d has no pattern", i))
		}
		if _, err := path.Match(e.Pattern, ""); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("schema entry %d has malformed pattern %q", i, e.Pattern))
		}
		if len(e.Mapping.IPFields) == 0 {
			return nil, errors.ValidationError(fmt.Sprintf("schema %s needs at least one ip field", e.Pattern))
		}
		if e.Mapping.TimestampField == "" {
			return nil, errors.ValidationError(fmt.Sprintf("schema %s needs a timestamp field", e.Pattern))
		}
		if e.Mapping.Cluster == nil || e.Mapping.Cluster.URL == "" {
			return nil, errors.ValidationError(fmt.Sprintf("schema %s has no cluster endpoint", e.Pattern))
		}
		e.Mapping.IPFields = append([]string(nil), e.Mapping.IPFields...)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Lookup returns the mapping of the first entry whose pattern matches index.
// An unmatched index gets DefaultMapping.
func (r *Registry) Lookup(index string) Mapping {
	if e, ok := r.match(index); ok {
		return e.Mapping
	}
	return DefaultMapping()
}

// ClusterFor returns the cluster that owns index. An unmatched index fails
// with a NO_CLUSTER_ROUTE error.
func (r *Registry) ClusterFor(index string) (*Cluster, error) {
	e, ok := r.match(index)
	if !ok {
		return nil, errors.NoClusterRouteError(index)
	}
	return e.Mapping.Cluster, nil
}

// Entries returns the registered entries in priority order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) match(index string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Pattern == index {
			return e, true
		}
		if ok, _ := path.Match(e.Pattern, index); ok {
			return e, true
		}
	}
	return Entry{}, false
}
