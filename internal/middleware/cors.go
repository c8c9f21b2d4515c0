package middleware

import (
	"net/http"
	"strings"
)

var corsAllowedHeaders = strings.Join([]string{
	"Content-Type", "Authorization", "X-Requested-With",
	RequestIDHeader, ActorRoleHeader, ActorIDHeader,
}, ", ")

// CORSMiddleware handles Cross-Origin Resource Sharing headers for the
// dashboards
type CORSMiddleware struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORSMiddleware creates a new CORS middleware.
// If no origins are specified, all origins are allowed.
func NewCORSMiddleware(allowedOrigins ...string) *CORSMiddleware {
	return &CORSMiddleware{
		allowedOrigins: allowedOrigins,
		allowAll:       len(allowedOrigins) == 0,
	}
}

// Wrap wraps an http.Handler with CORS headers
func (c *CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && c.Allows(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allows reports whether origin may call the API. The websocket upgrader
// uses it as its origin check.
func (c *CORSMiddleware) Allows(origin string) bool {
	if c.allowAll || origin == "" {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}
