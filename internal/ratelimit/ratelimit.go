// Package ratelimit implements fixed-window counters on the store's
// atomic increment.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/metrics"
	"github.com/cburnette/deaddrop/internal/store"
)

// DefaultSendLimit is the number of messages a sender may submit per
// minute bucket.
const DefaultSendLimit = 12

const bucketLayout = "200601021504"

// Decision is the outcome of one counted attempt.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	ResetAt time.Time
}

// Remaining returns how many attempts are left in the current bucket.
func (d Decision) Remaining() int {
	if r := d.Limit - int(d.Count); r > 0 {
		return r
	}
	return 0
}

// Limiter counts attempts per key and time bucket.
type Limiter struct {
	store *store.RedisStore
	now   func() time.Time
}

// New creates a Limiter.
func New(s *store.RedisStore) *Limiter {
	return &Limiter{store: s, now: time.Now}
}

// WithClock replaces the limiter's time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Hit counts one attempt against key in the bucket containing now. The
// increment and the expiry are applied in one atomic batch, and the
// expiry is twice the window so a counter straddling a bucket boundary
// under clock skew still expires on its own. A rejected attempt still
// counts.
func (l *Limiter) Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now().UTC()
	start := now.Truncate(window)
	bucketKey := fmt.Sprintf("rl:%s:%s", key, start.Format(bucketLayout))

	count, err := l.store.IncrWindow(ctx, bucketKey, 2*window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed: count <= int64(limit),
		Count:   count,
		Limit:   limit,
		ResetAt: start.Add(window),
	}, nil
}

// SenderLimiter bounds message submissions per sender per minute.
type SenderLimiter struct {
	limiter *Limiter
	limit   int
}

// NewSenderLimiter creates a SenderLimiter. limit <= 0 selects
// DefaultSendLimit.
func NewSenderLimiter(l *Limiter, limit int) *SenderLimiter {
	if limit <= 0 {
		limit = DefaultSendLimit
	}
	return &SenderLimiter{limiter: l, limit: limit}
}

// Allow counts one send for senderID, failing with ResourceExhausted
// once the bucket exceeds the limit.
func (s *SenderLimiter) Allow(ctx context.Context, senderID string) error {
	d, err := s.limiter.Hit(ctx, senderID, s.limit, time.Minute)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	if !d.Allowed {
		metrics.RateLimitHits.WithLabelValues("sender").Inc()
		return apperr.New(apperr.ResourceExhausted, "rate limit exceeded: max %d messages per minute", s.limit)
	}
	return nil
}
