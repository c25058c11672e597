package schema

import (
	"github.com/ricesearch/logscout/internal/config"
	"github.com/ricesearch/logscout/internal/pkg/errors"
)

// FromConfig builds the registry from the configured schema table and clusters.
func FromConfig(cfg *config.Config) (*Registry, error) {
	clusters := make(map[string]*Cluster)
	for _, cl := range cfg.AllClusters() {
		clusters[cl.Name] = &Cluster{
			Name:     cl.Name,
			URL:      cl.URL,
			Username: cl.Username,
			Password: cl.Password,
			Timeout:  cl.Timeout,
		}
	}

	entries := make([]Entry, 0, len(cfg.Schemas))
	for _, s := range cfg.Schemas {
		name := cfg.ClusterName(s)
		cl, ok := clusters[name]
		if !ok {
			return nil, errors.ValidationError("schema " + s.Pattern + " references unknown cluster " + name)
		}
		entries = append(entries, Entry{
			Pattern: s.Pattern,
			Mapping: Mapping{
				IPFields:       s.IPFields,
				TimestampField: s.TimestampField,
				Cluster:        cl,
			},
		})
	}

	return NewRegistry(entries)
}
