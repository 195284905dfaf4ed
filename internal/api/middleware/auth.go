package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/auth"
)

type contextKey string

const AgentIDContextKey contextKey = "agent_id"

// AuthMiddleware guards agent and operator endpoints.
type AuthMiddleware struct {
	agents *auth.Authenticator
	admin  *auth.AdminGuard
	logger zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(agents *auth.Authenticator, admin *auth.AdminGuard, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{agents: agents, admin: admin, logger: logger}
}

// RequireAuth resolves the bearer API key and stores the agent id in the
// request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID, err := m.agents.Verify(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if apperr.Is(err, apperr.Unauthenticated) {
				w.Header().Set("WWW-Authenticate", "Bearer")
			} else {
				m.logger.Error().Err(err).Str("path", r.URL.Path).Msg("token lookup failed")
			}
			jsonError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
			return
		}

		ctx := context.WithValue(r.Context(), AgentIDContextKey, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin checks the operator secret.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.admin.Check(r.Header.Get("Authorization")); err != nil {
			if apperr.Is(err, apperr.Unauthenticated) {
				m.logger.Warn().
					Str("type", "security").
					Str("event", "admin_auth_failed").
					Str("remote_addr", r.RemoteAddr).
					Msg("admin secret rejected")
			}
			jsonError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAgentID retrieves the authenticated agent id from the request context.
func GetAgentID(ctx context.Context) string {
	agentID, _ := ctx.Value(AgentIDContextKey).(string)
	return agentID
}
