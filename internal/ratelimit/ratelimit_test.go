package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/testutil"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSenderLimiterThirteenthFails(t *testing.T) {
	s, mr := testutil.NewStore(t)
	l := New(s)
	l.now = fixedClock(time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC))
	sl := NewSenderLimiter(l, 0)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		require.NoError(t, sl.Allow(ctx, "dd_sender"), "send %d", i)
	}
	err := sl.Allow(ctx, "dd_sender")
	assert.True(t, apperr.Is(err, apperr.ResourceExhausted))

	// Rejected attempts still count.
	assert.Equal(t, "13", mustGet(t, mr.Get, "rl:dd_sender:202603011015"))
	assert.Equal(t, 2*time.Minute, mr.TTL("rl:dd_sender:202603011015"))

	// Another sender is unaffected.
	assert.NoError(t, sl.Allow(ctx, "dd_other"))
}

func TestSenderLimiterNewBucket(t *testing.T) {
	s, _ := testutil.NewStore(t)
	l := New(s)
	now := time.Date(2026, 3, 1, 10, 15, 59, 0, time.UTC)
	l.now = func() time.Time { return now }
	sl := NewSenderLimiter(l, 2)
	ctx := context.Background()

	require.NoError(t, sl.Allow(ctx, "dd_s"))
	require.NoError(t, sl.Allow(ctx, "dd_s"))
	assert.Error(t, sl.Allow(ctx, "dd_s"))

	now = now.Add(time.Second)
	assert.NoError(t, sl.Allow(ctx, "dd_s"))
}

func TestHitDecision(t *testing.T) {
	s, _ := testutil.NewStore(t)
	l := New(s)
	l.now = fixedClock(time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC))

	d, err := l.Hit(context.Background(), "ip:register:1.2.3.4", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining())
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), d.ResetAt)
}

func TestSenderLimiterStoreDown(t *testing.T) {
	s, mr := testutil.NewStore(t)
	sl := NewSenderLimiter(New(s), 0)
	mr.SetError("ERR injected outage")
	defer mr.SetError("")

	err := sl.Allow(context.Background(), "dd_s")
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func mustGet(t *testing.T, get func(string) (string, error), key string) string {
	t.Helper()
	v, err := get(key)
	require.NoError(t, err)
	return v
}
