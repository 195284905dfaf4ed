// Package mailbox fans messages out to per-agent inboxes and consumes
// them in arrival order.
//
// Consumption is at-least-once. Two polls for the same agent running at
// the same time can read overlapping snapshots before either trims, and
// both will then return the overlapping messages. Clients are expected
// to run at most one poller per agent at a time.
package mailbox

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/crypto"
	"github.com/cburnette/deaddrop/internal/metrics"
	"github.com/cburnette/deaddrop/internal/models"
	"github.com/cburnette/deaddrop/internal/store"
)

const (
	MaxRecipients = 10
	MaxBodyLen    = 32768
	MinTake       = 1
	MaxTake       = 10
	DefaultTake   = 1
)

// SendRequest is a message submission from an authenticated sender.
type SendRequest struct {
	From    string
	To      []string
	Body    string
	ReplyTo string
}

// Admitter gates a send after request validation, before any recipient
// lookup. The sender rate limiter satisfies it.
type Admitter interface {
	Allow(ctx context.Context, senderID string) error
}

// Mailbox implements send and poll over the store.
type Mailbox struct {
	store  *store.RedisStore
	admit  Admitter
	logger zerolog.Logger
	now    func() time.Time
	ttl    time.Duration

	// afterSnapshot runs between reading and trimming an inbox. Tests
	// use it to interleave concurrent polls.
	afterSnapshot func()
}

// New creates a Mailbox. admit may be nil to disable admission control.
func New(s *store.RedisStore, admit Admitter, logger zerolog.Logger) *Mailbox {
	return &Mailbox{
		store:  s,
		admit:  admit,
		logger: logger.With().Str("component", "mailbox").Logger(),
		now:    time.Now,
		ttl:    store.MessageTTL,
	}
}

// ValidateSend checks a request's shape without touching the store.
// Checks run in order and the first failure wins: recipient count,
// duplicate recipients, self-send, body.
func ValidateSend(req *SendRequest) error {
	if len(req.To) == 0 || len(req.To) > MaxRecipients {
		return apperr.New(apperr.InvalidArgument, "to must contain 1-%d recipients", MaxRecipients)
	}

	seen := make(map[string]bool, len(req.To))
	for _, r := range req.To {
		if seen[r] {
			return apperr.New(apperr.InvalidArgument, "duplicate recipients are not allowed")
		}
		seen[r] = true
	}

	if seen[req.From] {
		return apperr.New(apperr.Forbidden, "cannot send a message to yourself")
	}

	body := strings.TrimSpace(req.Body)
	if n := utf8.RuneCountInString(body); n == 0 || n > MaxBodyLen {
		return apperr.New(apperr.InvalidArgument, "body must be 1-%d characters", MaxBodyLen)
	}
	return nil
}

// Send validates, admits and delivers a message. Every recipient must
// exist and be active before anything is written; the content record
// and all inbox appends then land in one atomic batch.
func (m *Mailbox) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	if err := ValidateSend(&req); err != nil {
		return nil, err
	}

	sender, err := m.store.GetAgent(ctx, req.From)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if sender == nil {
		return nil, apperr.New(apperr.Unauthenticated, "invalid or missing auth token")
	}
	if !sender.Active {
		return nil, apperr.New(apperr.Forbidden, "sender is deactivated")
	}

	if m.admit != nil {
		if err := m.admit.Allow(ctx, req.From); err != nil {
			if apperr.Is(err, apperr.ResourceExhausted) {
				m.logger.Warn().
					Str("type", "security").
					Str("event", "rate_limit_exceeded").
					Str("agent_id", req.From).
					Msg("send rejected")
			}
			return nil, err
		}
	}

	for _, id := range req.To {
		if !crypto.IsAgentID(id) {
			return nil, apperr.New(apperr.NotFound, "recipient '%s' not found or inactive", id)
		}
	}
	active, err := m.store.ActiveStates(ctx, req.To)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	for i, ok := range active {
		if !ok {
			return nil, apperr.New(apperr.NotFound, "recipient '%s' not found or inactive", req.To[i])
		}
	}

	msg := &models.Message{
		ID:        crypto.NewMessageID(),
		From:      req.From,
		To:        append([]string(nil), req.To...),
		Body:      strings.TrimSpace(req.Body),
		Timestamp: m.now().UTC().Truncate(time.Second),
		ReplyTo:   req.ReplyTo,
	}
	if err := m.store.DeliverMessage(ctx, msg, m.ttl); err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	metrics.MessagesSent.Inc()
	metrics.RecipientsDelivered.Add(float64(len(msg.To)))
	m.logger.Debug().
		Str("message_id", msg.ID).
		Str("from", msg.From).
		Int("recipients", len(msg.To)).
		Msg("message delivered")

	return msg, nil
}
