package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/logger"
)

const (
	// RequestIDHeader is the HTTP header used for request IDs.
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLength = 128
)

// requestIDContextKey is the context key for the request ID.
type requestIDContextKey struct{}

// RequestIDMiddleware adds an X-Request-ID header to every response and
// attaches the id to the request's logger. A client-provided id is reused
// unless it is oversized.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, id)
		ctx = logger.WithKV(ctx, "request_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from the context, or an empty string.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}
