// Package auth resolves bearer credentials to agent identities.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/crypto"
	"github.com/cburnette/deaddrop/internal/store"
)

const bearerScheme = "Bearer "

// errInvalidToken is returned for every rejected credential, whichever
// check failed.
var errInvalidToken = apperr.New(apperr.Unauthenticated, "invalid or missing auth token")

// Authenticator verifies per-agent API keys.
type Authenticator struct {
	store *store.RedisStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(s *store.RedisStore) *Authenticator {
	return &Authenticator{store: s}
}

// Verify turns a raw Authorization header into the agent id the token
// was issued to. The result says nothing about whether the agent is
// currently active.
func (a *Authenticator) Verify(ctx context.Context, header string) (string, error) {
	token, ok := bearerToken(header)
	if !ok {
		return "", errInvalidToken
	}
	if err := crypto.ValidateTokenFormat(token); err != nil {
		return "", errInvalidToken
	}

	agentID, err := a.store.AgentIDForDigest(ctx, crypto.HashToken(token))
	if err != nil {
		return "", apperr.StoreUnavailable(err)
	}
	if agentID == "" {
		return "", errInvalidToken
	}
	return agentID, nil
}

// AdminGuard checks the static operator secret used by the stats
// endpoint. It is distinct from agent API keys.
type AdminGuard struct {
	secret string
}

// NewAdminGuard creates an AdminGuard. An empty secret leaves the guard
// unconfigured and every check fails with Unavailable.
func NewAdminGuard(secret string) *AdminGuard {
	return &AdminGuard{secret: secret}
}

// Check validates a raw Authorization header against the secret.
func (g *AdminGuard) Check(header string) error {
	if g.secret == "" {
		return apperr.New(apperr.Unavailable, "admin secret not configured")
	}
	token, ok := bearerToken(header)
	if !ok {
		return apperr.New(apperr.Unauthenticated, "missing Authorization header")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.secret)) != 1 {
		return apperr.New(apperr.Unauthenticated, "invalid admin secret")
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	return token, token != ""
}
