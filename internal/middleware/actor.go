package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/logger"
)

const (
	// ActorRoleHeader and ActorIDHeader carry the caller identity when no
	// JWT secret is configured and a trusted gateway sets them.
	ActorRoleHeader = "X-Actor-Role"
	ActorIDHeader   = "X-Actor-ID"

	tokenIssuer = "coordinator"
)

// ActorClaims are the JWT claims of a caller. Subject is the party id.
type ActorClaims struct {
	Role lifecycle.Role `json:"role"`
	jwt.RegisteredClaims
}

type actorContextKey struct{}

// ActorMiddleware resolves the calling party. With a secret, a Bearer token
// (or a token query parameter, for browser websockets) is required on every
// path not listed in skip; without one, the identity headers are trusted and
// may be absent.
type ActorMiddleware struct {
	secret []byte
	skip   map[string]bool
}

// NewActorMiddleware creates the identity middleware
func NewActorMiddleware(secret string, skipPaths ...string) *ActorMiddleware {
	m := &ActorMiddleware{skip: make(map[string]bool)}
	if secret != "" {
		m.secret = []byte(secret)
	}
	for _, p := range skipPaths {
		m.skip[p] = true
	}
	return m
}

// Enforced reports whether tokens are required
func (m *ActorMiddleware) Enforced() bool {
	return len(m.secret) > 0
}

// IssueToken signs a token for actor valid for ttl
func (m *ActorMiddleware) IssueToken(actor lifecycle.Actor, ttl time.Duration) (string, error) {
	if !m.Enforced() {
		return "", errors.New("no JWT secret configured")
	}
	return IssueToken(m.secret, actor, ttl)
}

// IssueToken signs an HS256 token carrying actor
func IssueToken(secret []byte, actor lifecycle.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a token and returns its actor
func (m *ActorMiddleware) ParseToken(raw string) (lifecycle.Actor, error) {
	claims := &ActorClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return lifecycle.Actor{}, err
	}
	actor := lifecycle.Actor{Role: claims.Role, ID: claims.Subject}
	if err := CheckActor(actor); err != nil {
		return lifecycle.Actor{}, err
	}
	return actor, nil
}

// Wrap wraps an http.Handler with identity resolution
func (m *ActorMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if m.Enforced() {
			raw := extractToken(r)
			if raw == "" {
				unauthorized(w, "Missing authentication token")
				return
			}
			actor, err := m.ParseToken(raw)
			if err != nil {
				logger.WarnKV(r.Context(), "Rejected token", "remote_addr", r.RemoteAddr, "error", err)
				unauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
			return
		}

		role := strings.TrimSpace(r.Header.Get(ActorRoleHeader))
		id := strings.TrimSpace(r.Header.Get(ActorIDHeader))
		if role == "" && id == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor := lifecycle.Actor{Role: lifecycle.Role(role), ID: id}
		if err := CheckActor(actor); err != nil {
			api.RespondErrorWithCode(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// CheckActor rejects unknown roles and the internal system role. Only admin
// may omit the id.
func CheckActor(a lifecycle.Actor) error {
	if !a.Role.Valid() || a.Role == lifecycle.RoleSystem {
		return fmt.Errorf("unknown actor role %q", a.Role)
	}
	if a.ID == "" && a.Role != lifecycle.RoleAdmin {
		return errors.New("actor id is required")
	}
	return nil
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer realm=\"API\"")
	api.RespondErrorWithCode(w, http.StatusUnauthorized, "unauthorized", message)
}

// WithActor returns a context carrying actor
func WithActor(ctx context.Context, actor lifecycle.Actor) context.Context {
	ctx = context.WithValue(ctx, actorContextKey{}, actor)
	return logger.WithKV(ctx, "actor", actor.String())
}

// ActorFromContext returns the resolved caller, if any
func ActorFromContext(ctx context.Context) (lifecycle.Actor, bool) {
	a, ok := ctx.Value(actorContextKey{}).(lifecycle.Actor)
	return a, ok
}
