package catalog

import (
	"context"
	"math"
	"sort"
)

// Match is a scored catalog source.
type Match struct {
	Pattern  string  `json:"pattern"`
	Score    float64 `json:"score"`
	Position int     `json:"-"`
}

// VectorIndex scores catalog sources against a question vector.
type VectorIndex interface {
	// Search returns up to limit matches. Order is not significant.
	Search(ctx context.Context, vector []float32, limit int) ([]Match, error)
}

// MemoryIndex scores every usable source by cosine similarity.
type MemoryIndex struct {
	sources []LogSource
}

// NewMemoryIndex creates an in-memory index over the catalog.
func NewMemoryIndex(c *Catalog) *MemoryIndex {
	return &MemoryIndex{sources: c.sources}
}

// Search implements VectorIndex.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, limit int) ([]Match, error) {
	matches := make([]Match, 0, len(m.sources))
	for i, s := range m.sources {
		score, ok := Cosine(vector, s.Embedding)
		if !ok {
			continue
		}
		matches = append(matches, Match{Pattern: s.Pattern, Score: score, Position: i})
	}

	rank(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of a and b. It reports false when the
// vectors are empty, of different lengths, or have zero magnitude.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// rank orders matches by descending score, ties by catalog position.
func rank(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Position < matches[j].Position
	})
}
