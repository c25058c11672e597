package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/ricesearch/logscout/internal/pkg/errors"
)

// APIKeyHeader is the header checked by APIKey.
const APIKeyHeader = "X-API-Key"

// APIKey requires key in the X-API-Key header or as a bearer token.
// Paths in public are served without a key. An empty key disables the check.
func APIKey(key string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(APIKeyHeader)
			if presented == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				apperrors.WriteError(w, apperrors.UnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
