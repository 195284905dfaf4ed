package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cburnette/deaddrop/internal/models"
	"github.com/cburnette/deaddrop/internal/store"
	"github.com/cburnette/deaddrop/internal/testutil"
)

func TestReserveNameIsExclusive(t *testing.T) {
	s, _ := testutil.NewStore(t)
	ctx := context.Background()

	ok, err := s.ReserveName(ctx, "alpha", "dd_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ReserveName(ctx, "alpha", "dd_2")
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := s.NameOwner(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "dd_1", owner)

	require.NoError(t, s.ReleaseName(ctx, "alpha"))
	owner, err = s.NameOwner(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestCreateAndGetAgent(t *testing.T) {
	s, mr := testutil.NewStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	agent := &models.Agent{
		ID:          "dd_1",
		Name:        "alpha",
		Description: "first agent",
		Active:      true,
		CreatedAt:   created,
		AuthHash:    "abc123",
	}
	require.NoError(t, s.CreateAgent(ctx, agent))

	got, err := s.GetAgent(ctx, "dd_1")
	require.NoError(t, err)
	assert.Equal(t, agent, got)

	id, err := s.AgentIDForDigest(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "dd_1", id)

	score, err := mr.ZScore("agents:created", "dd_1")
	require.NoError(t, err)
	assert.Equal(t, float64(created.Unix()), score)
}

func TestGetAgentMissing(t *testing.T) {
	s, _ := testutil.NewStore(t)

	got, err := s.GetAgent(context.Background(), "dd_nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	id, err := s.AgentIDForDigest(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDecodeAgentDefaults(t *testing.T) {
	s, mr := testutil.NewStore(t)
	mr.HSet("agent:dd_partial", "name", "partial")

	got, err := s.GetAgent(context.Background(), "dd_partial")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "partial", got.Name)
	assert.False(t, got.Active)
	assert.True(t, got.CreatedAt.IsZero())
}

func TestActiveStates(t *testing.T) {
	s, mr := testutil.NewStore(t)
	mr.HSet("agent:dd_on", "active", "true")
	mr.HSet("agent:dd_off", "active", "false")

	states, err := s.ActiveStates(context.Background(), []string{"dd_on", "dd_off", "dd_missing"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, states)
}

func TestDeliverMessageSetsTTLAndFansOut(t *testing.T) {
	s, mr := testutil.NewStore(t)
	ctx := context.Background()

	msg := &models.Message{
		ID:        "msg_1",
		From:      "dd_a",
		To:        []string{"dd_b", "dd_c"},
		Body:      "hello",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.DeliverMessage(ctx, msg, store.MessageTTL))

	assert.Equal(t, store.MessageTTL, mr.TTL("message:msg_1"))
	for _, r := range []string{"dd_b", "dd_c"} {
		ids, err := s.InboxSnapshot(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, []string{"msg_1"}, ids)
	}

	got, err := s.GetMessages(ctx, []string{"msg_1", "msg_gone"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, msg, got[0])
	assert.Nil(t, got[1])
}

func TestTrimAndRequeuePreserveOrder(t *testing.T) {
	s, mr := testutil.NewStore(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		mr.Push("inbox:dd_b", id)
	}

	snap, err := s.InboxSnapshot(ctx, "dd_b")
	require.NoError(t, err)
	mr.Push("inbox:dd_b", "m4") // arrives after the snapshot
	require.NoError(t, s.TrimInboxHead(ctx, "dd_b", len(snap)))
	require.NoError(t, s.RequeueInboxHead(ctx, "dd_b", snap[1:]))

	ids, err := s.InboxSnapshot(ctx, "dd_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4"}, ids)
}

func TestMessagesExist(t *testing.T) {
	s, mr := testutil.NewStore(t)
	mr.HSet("message:m1", "body", "x")

	exists, err := s.MessagesExist(context.Background(), []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, exists)
}

func TestIncrWindow(t *testing.T) {
	s, mr := testutil.NewStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrWindow(ctx, "rl:x", 2*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, 2*time.Minute, mr.TTL("rl:x"))

	mr.FastForward(3 * time.Minute)
	n, err := s.IncrWindow(ctx, "rl:x", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestScanKeysAndInboxLengths(t *testing.T) {
	s, mr := testutil.NewStore(t)
	ctx := context.Background()
	mr.Push("inbox:dd_a", "m1")
	mr.Push("inbox:dd_a", "m2")
	mr.Push("inbox:dd_b", "m3")
	mr.Set("unrelated", "x")

	keys, err := s.ScanKeys(ctx, store.InboxKeyPattern)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"inbox:dd_a", "inbox:dd_b"}, keys)

	lengths, err := s.InboxLengths(ctx, []string{"inbox:dd_a", "inbox:dd_b"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, lengths)
	assert.Equal(t, "dd_a", store.InboxOwner("inbox:dd_a"))
}

func TestRecentAgentIDsNewestFirst(t *testing.T) {
	s, mr := testutil.NewStore(t)
	mr.ZAdd("agents:created", 100, "dd_old")
	mr.ZAdd("agents:created", 300, "dd_new")
	mr.ZAdd("agents:created", 200, "dd_mid")

	ids, err := s.RecentAgentIDs(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dd_new", "dd_mid", "dd_old"}, ids)

	ids, err = s.RecentAgentIDs(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"dd_new", "dd_mid"}, ids)

	ids, err = s.RecentAgentIDs(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"dd_old"}, ids)

	ids, err = s.RecentAgentIDs(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dd_mid", "dd_old"}, ids)

	n, err := s.CountAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
