package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/crypto"
	"github.com/cburnette/deaddrop/internal/testutil"
)

func TestVerify(t *testing.T) {
	s, mr := testutil.NewStore(t)
	a := NewAuthenticator(s)
	ctx := context.Background()

	token, digest, err := crypto.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, mr.Set("auth:"+digest, "dd_agent"))

	id, err := a.Verify(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "dd_agent", id)
}

func TestVerifyRejects(t *testing.T) {
	s, _ := testutil.NewStore(t)
	a := NewAuthenticator(s)
	unknown, _, err := crypto.GenerateAPIKey()
	require.NoError(t, err)

	for _, header := range []string{
		"",
		"dd_key_abc",
		"Basic dd_key_abc",
		"bearer " + unknown,
		"Bearer ",
		"Bearer sk_live_abc",
		"Bearer " + unknown,
	} {
		_, err := a.Verify(context.Background(), header)
		assert.True(t, apperr.Is(err, apperr.Unauthenticated), "header %q: %v", header, err)
	}
}

func TestVerifyStoreUnavailable(t *testing.T) {
	s, mr := testutil.NewStore(t)
	a := NewAuthenticator(s)
	token, _, err := crypto.GenerateAPIKey()
	require.NoError(t, err)

	mr.SetError("ERR injected outage")
	defer mr.SetError("")

	_, err = a.Verify(context.Background(), "Bearer "+token)
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestAdminGuard(t *testing.T) {
	g := NewAdminGuard("s3cret")
	assert.NoError(t, g.Check("Bearer s3cret"))
	assert.True(t, apperr.Is(g.Check(""), apperr.Unauthenticated))
	assert.True(t, apperr.Is(g.Check("Bearer wrong"), apperr.Unauthenticated))
	assert.True(t, apperr.Is(g.Check("s3cret"), apperr.Unauthenticated))

	unset := NewAdminGuard("")
	assert.True(t, apperr.Is(unset.Check("Bearer anything"), apperr.Unavailable))
}
