// Package catalog holds the log-source descriptors and resolves a free-text
// question to the most similar sources.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ricesearch/logscout/internal/config"
	"github.com/ricesearch/logscout/internal/embedding"
	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
)

// Descriptor is a configured log source before embedding.
type Descriptor struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Description string `json:"description" yaml:"description"`
}

// LogSource is a descriptor with its cached description embedding.
// An empty Embedding means the provider failed and the source is never selected.
type LogSource struct {
	Pattern     string    `json:"pattern"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
}

// Usable reports whether the source can take part in resolution.
func (s LogSource) Usable() bool {
	return len(s.Embedding) > 0
}

// Catalog is the ordered, read-only set of log sources.
type Catalog struct {
	sources []LogSource
	index   map[string]int
}

// New embeds every descriptor, one provider call each, in order.
// Embedding failures are logged and leave that source unusable.
// Invalid descriptors (empty or duplicate patterns) fail construction.
func New(ctx context.Context, descs []Descriptor, embedder embedding.Embedder, log *logger.Logger) (*Catalog, error) {
	c := &Catalog{
		sources: make([]LogSource, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
	}

	for _, d := range descs {
		pattern := strings.TrimSpace(d.Pattern)
		if pattern == "" {
			return nil, errors.ValidationError("log source pattern is required")
		}
		if _, dup := c.index[pattern]; dup {
			return nil, errors.ValidationError(fmt.Sprintf("duplicate log source pattern: %s", pattern))
		}

		vec, err := embedder.Embed(ctx, d.Description)
		if err != nil || len(vec) == 0 {
			if err == nil {
				err = errors.EmbeddingUnavailableError("empty vector", nil)
			}
			log.WithIndex(pattern).WithError(err).Warn("Description embedding unavailable, source will not be resolvable")
			vec = nil
		}

		c.index[pattern] = len(c.sources)
		c.sources = append(c.sources, LogSource{
			Pattern:     pattern,
			Description: d.Description,
			Embedding:   vec,
		})
	}

	log.Info("Log source catalog built", "sources", len(c.sources), "usable", c.UsableCount())
	return c, nil
}

// FromConfig converts configured sources into descriptors.
func FromConfig(sources []config.SourceConfig) []Descriptor {
	descs := make([]Descriptor, len(sources))
	for i, s := range sources {
		descs[i] = Descriptor{Pattern: s.Pattern, Description: s.Description}
	}
	return descs
}

// Sources returns the sources in insertion order.
func (c *Catalog) Sources() []LogSource {
	out := make([]LogSource, len(c.sources))
	copy(out, c.sources)
	return out
}

// Get returns the source registered under pattern.
func (c *Catalog) Get(pattern string) (LogSource, bool) {
	i, ok := c.index[pattern]
	if !ok {
		return LogSource{}, false
	}
	return c.sources[i], true
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	return len(c.sources)
}

// UsableCount returns the number of sources with an embedding.
func (c *Catalog) UsableCount() int {
	n := 0
	for _, s := range c.sources {
		if s.Usable() {
			n++
		}
	}
	return n
}

// Dimension returns the embedding size of the first usable source, or 0.
func (c *Catalog) Dimension() int {
	for _, s := range c.sources {
		if s.Usable() {
			return len(s.Embedding)
		}
	}
	return 0
}
