// Package qdrant provides a wrapper around the Qdrant Go client
// for storing and searching log-source description embeddings.
package qdrant

// CollectionConfig defines the configuration for creating a Qdrant collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed with "logscout_").
	Name string

	// VectorSize is the dimension of the description embeddings.
	VectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool
}

// DefaultCollectionConfig returns defaults for a source catalog collection.
// The catalog is small, so payloads stay in memory.
func DefaultCollectionConfig(name string, vectorSize uint64) CollectionConfig {
	return CollectionConfig{
		Name:       name,
		VectorSize: vectorSize,
	}
}

// Point is one catalog descriptor stored in Qdrant.
type Point struct {
	// ID is a UUID derived from the pattern.
	ID string

	// Vector is the description embedding.
	Vector []float32

	// Payload is the descriptor metadata.
	Payload SourcePayload
}

// SourcePayload is the metadata stored with each descriptor point.
type SourcePayload struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Position    int    `json:"position"` // catalog insertion order
}

// SearchRequest defines parameters for a dense search.
type SearchRequest struct {
	Vector []float32
	Limit  uint64

	// ScoreThreshold filters out results below this score (optional).
	ScoreThreshold *float32

	// IDs restricts the search to these point IDs (optional).
	IDs []string
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID      string
	Score   float32
	Payload SourcePayload
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
	VectorSize  uint64
	Status      string
}
