package registry

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/crypto"
	"github.com/cburnette/deaddrop/internal/store"
	"github.com/cburnette/deaddrop/internal/testutil"
)

func newRegistry(t *testing.T) (*Registry, *store.RedisStore) {
	t.Helper()
	s, _ := testutil.NewStore(t)
	return New(s, zerolog.Nop()), s
}

// faultHook fails pipelines and/or single commands on demand.
type faultHook struct {
	failPipelines atomic.Bool
	failCommands  atomic.Bool
}

var errInjected = errors.New("injected store failure")

func (h *faultHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *faultHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.failCommands.Load() {
			cmd.SetErr(errInjected)
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (h *faultHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.failPipelines.Load() {
			return errInjected
		}
		return next(ctx, cmds)
	}
}

// hgetallCounter counts HGETALL commands sent inside pipelines.
type hgetallCounter struct {
	n atomic.Int64
}

func (h *hgetallCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *hgetallCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *hgetallCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if strings.EqualFold(cmd.Name(), "hgetall") {
				h.n.Add(1)
			}
		}
		return next(ctx, cmds)
	}
}

func TestRegister(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()

	reg, err := r.Register(ctx, "  test-agent ", "  A test agent  ")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(reg.Agent.ID, "dd_"))
	assert.True(t, strings.HasPrefix(reg.APIKey, crypto.APIKeyPrefix))
	assert.Len(t, reg.APIKey, 71)
	assert.Equal(t, "test-agent", reg.Agent.Name)
	assert.Equal(t, "A test agent", reg.Agent.Description)
	assert.True(t, reg.Agent.Active)

	id, err := s.AgentIDForDigest(ctx, crypto.HashToken(reg.APIKey))
	require.NoError(t, err)
	assert.Equal(t, reg.Agent.ID, id)

	stored, err := s.GetAgent(ctx, reg.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Agent, stored)
	assert.NotContains(t, stored.AuthHash, reg.APIKey)
}

func TestRegisterDuplicateName(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()

	first, err := r.Register(ctx, "alpha", "the first")
	require.NoError(t, err)

	_, err = r.Register(ctx, "alpha", "an impostor")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	stored, err := s.GetAgent(ctx, first.Agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "the first", stored.Description)

	n, err := s.CountAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNamesAreCaseSensitive(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "alpha", "lower")
	require.NoError(t, err)
	_, err = r.Register(ctx, "Alpha", "upper")
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name, desc string
	}{
		{"ab", "too short"},
		{strings.Repeat("a", 129), "too long"},
		{"bad name!", "bad chars"},
		{"bad.name", "bad chars"},
		{"good-name", ""},
		{"good-name", "   "},
		{"good-name", strings.Repeat("x", 1025)},
	}
	for _, tc := range cases {
		_, err := r.Register(ctx, tc.name, tc.desc)
		assert.True(t, apperr.Is(err, apperr.InvalidArgument), "%q/%q: %v", tc.name, tc.desc, err)
	}

	n, err := s.CountAgents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	owner, err := s.NameOwner(ctx, "good-name")
	require.NoError(t, err)
	assert.Empty(t, owner, "validation failures must not reserve names")
}

func TestRegisterBoundaryLengths(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "abc", "x")
	require.NoError(t, err)
	_, err = r.Register(ctx, strings.Repeat("z", 128), strings.Repeat("d", 1024))
	require.NoError(t, err)
}

func TestRegisterCommitFailureReleasesName(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	hook := &faultHook{}
	s.Client().AddHook(hook)

	hook.failPipelines.Store(true)
	_, err := r.Register(ctx, "flaky", "first try")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unavailable))

	owner, err := s.NameOwner(ctx, "flaky")
	require.NoError(t, err)
	assert.Empty(t, owner, "reservation should be released")

	hook.failPipelines.Store(false)
	_, err = r.Register(ctx, "flaky", "second try")
	require.NoError(t, err)
}

func TestRegisterReleaseFailureLeaksName(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	hook := &faultHook{}
	s.Client().AddHook(hook)

	// Reserve directly, then fail both the commit and the rollback delete.
	res := &reservation{r: r, name: "leaky", agentID: crypto.NewAgentID()}
	ok, err := s.ReserveName(ctx, res.name, res.agentID)
	require.NoError(t, err)
	require.True(t, ok)

	hook.failPipelines.Store(true)
	hook.failCommands.Store(true)
	err = res.commit(ctx, testAgent(res.agentID, res.name))
	hook.failPipelines.Store(false)
	hook.failCommands.Store(false)
	assert.True(t, apperr.Is(err, apperr.Unavailable))

	owner, err := s.NameOwner(ctx, "leaky")
	require.NoError(t, err)
	assert.Equal(t, res.agentID, owner, "failed rollback leaves the name blocked")

	_, err = r.Register(ctx, "leaky", "blocked forever")
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))
}

func TestRegisterStoreDown(t *testing.T) {
	s, mr := testutil.NewStore(t)
	r := New(s, zerolog.Nop())
	mr.SetError("ERR injected outage")
	defer mr.SetError("")

	_, err := r.Register(context.Background(), "alpha", "desc")
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestSetActiveAndUpdateProfile(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	reg, err := r.Register(ctx, "mutable", "before")
	require.NoError(t, err)

	require.NoError(t, r.SetActive(ctx, reg.Agent.ID, false))
	agent, err := s.GetAgent(ctx, reg.Agent.ID)
	require.NoError(t, err)
	assert.False(t, agent.Active)
	assert.Equal(t, fixed, agent.UpdatedAt)

	require.NoError(t, r.SetActive(ctx, reg.Agent.ID, true))
	require.NoError(t, r.UpdateProfile(ctx, reg.Agent.ID, "  after  "))
	agent, err = r.Get(ctx, reg.Agent.ID)
	require.NoError(t, err)
	assert.True(t, agent.Active)
	assert.Equal(t, "after", agent.Description)
	assert.Equal(t, "mutable", agent.Name)

	err = r.UpdateProfile(ctx, reg.Agent.ID, "")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestMutationsOnMissingAgent(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	assert.True(t, apperr.Is(r.SetActive(ctx, "dd_ghost", true), apperr.Unauthenticated))
	assert.True(t, apperr.Is(r.UpdateProfile(ctx, "dd_ghost", "x"), apperr.Unauthenticated))
	_, err := r.Get(ctx, "dd_ghost")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestGetForeignKeyShape(t *testing.T) {
	s, mr := testutil.NewStore(t)
	r := New(s, zerolog.Nop())
	require.NoError(t, mr.Set("agent:name:alpha", "dd_x"))

	_, err := r.Get(context.Background(), "name:alpha")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestListActive(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	a, err := r.Register(ctx, "first", "one")
	require.NoError(t, err)
	b, err := r.Register(ctx, "second", "two")
	require.NoError(t, err)
	c, err := r.Register(ctx, "third", "three")
	require.NoError(t, err)
	require.NoError(t, r.SetActive(ctx, b.Agent.ID, false))

	list, err := r.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c.Agent.ID, list[0].ID)
	assert.Equal(t, a.Agent.ID, list[1].ID)

	list, err = r.ListActive(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListActiveReadsOnlyWhatItNeeds(t *testing.T) {
	r, s := newRegistry(t)
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var ids []string
	for _, name := range []string{"agent-1", "agent-2", "agent-3", "agent-4", "agent-5", "agent-6"} {
		reg, err := r.Register(ctx, name, "worker")
		require.NoError(t, err)
		ids = append(ids, reg.Agent.ID)
	}

	counter := &hgetallCounter{}
	s.Client().AddHook(counter)

	list, err := r.ListActive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[5], list[0].ID)
	assert.Equal(t, ids[4], list[1].ID)
	assert.Equal(t, int64(2), counter.n.Load(), "only the first page is loaded")

	// The three newest are inactive, so the list pages past them.
	for _, id := range ids[3:] {
		require.NoError(t, r.SetActive(ctx, id, false))
	}
	list, err = r.ListActive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
}
