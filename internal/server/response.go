package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ricesearch/logscout/internal/pkg/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ResponseMeta contains metadata for API responses.
type ResponseMeta struct {
	RequestID string `json:"request_id,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp string `json:"timestamp"`
}

// WrappedResponse wraps /v1 responses with data and metadata.
type WrappedResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// writeJSON writes a bare JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes v inside the data/meta envelope.
func writeData(w http.ResponseWriter, r *http.Request, started time.Time, v any) {
	writeJSON(w, http.StatusOK, WrappedResponse{
		Data: v,
		Meta: ResponseMeta{
			RequestID: middleware.RequestIDFrom(r.Context()),
			LatencyMS: time.Since(started).Milliseconds(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// decodeBody decodes a JSON request body, rejecting unknown fields and
// trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
