// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, request timeouts, and rate limiting.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns every request an identifier (honoring one supplied by
// the client), stamps it into the context for log correlation, and echoes it
// in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
