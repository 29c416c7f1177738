package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

var (
	errNoCredentials = errors.New("no bearer token")
	errBadScheme     = errors.New("authorization scheme is not Bearer")
)

// Claims is the verified identity attached to a request.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// HasScopes reports whether c grants every scope in required.
func (c *Claims) HasScopes(required ...string) bool {
	if c == nil {
		return false
	}
	for _, s := range required {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// HasAnyRole reports whether c holds one of roles. An empty list accepts
// any authenticated caller.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	return slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(c.Roles, r) })
}

type contextKey struct{}

// ClaimsKey is the request context key holding *Claims.
var ClaimsKey = contextKey{}

// Roles.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// Scopes.
const (
	ScopeRead    = "read"
	ScopeControl = "control"
	ScopeEvents  = "events"
)

// QueryTokenParam carries the token on GET requests from clients that
// cannot set headers, such as a browser EventSource.
const QueryTokenParam = "access_token"

// HealthPath is served without credentials.
const HealthPath = "/api/v1/health"

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware authenticates requests and gates handlers on claims.
type Middleware struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewMiddleware creates an auth middleware backed by verifier.
func NewMiddleware(verifier TokenVerifier, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		verifier: verifier,
		logger:   logger.With("component", "auth"),
	}
}

// RequireAuth verifies the bearer token and stores the claims in the
// request context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			next(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		if m.verifier == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}
		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			m.logger.Debug("token rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims)))
	}
}

// RequireScope admits callers holding every scope in scopes.
func (m *Middleware) RequireScope(scopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return requireClaims(func(c *Claims) bool { return c.HasScopes(scopes...) })
}

// RequireRole admits callers holding at least one of roles.
func (m *Middleware) RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return requireClaims(func(c *Claims) bool { return c.HasAnyRole(roles...) })
}

// requireClaims must run inside RequireAuth; without claims it answers 401.
func requireClaims(allowed func(*Claims) bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case !allowed(claims):
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			default:
				next(w, r)
			}
		}
	}
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter on GET requests.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if r.Method == http.MethodGet {
			if token := r.URL.Query().Get(QueryTokenParam); token != "" {
				return token, nil
			}
		}
		return "", errNoCredentials
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errBadScheme
	}
	if token == "" {
		return "", errNoCredentials
	}
	return token, nil
}

// ClaimsFromContext returns the claims stored by RequireAuth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

// writeError writes the API error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result":        "error",
		"status":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	})
}
