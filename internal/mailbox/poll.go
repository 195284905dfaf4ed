package mailbox

import (
	"context"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/metrics"
	"github.com/cburnette/deaddrop/internal/models"
)

// ValidateTake checks a poll batch size.
func ValidateTake(take int) error {
	if take < MinTake || take > MaxTake {
		return apperr.New(apperr.InvalidArgument, "take must be %d-%d", MinTake, MaxTake)
	}
	return nil
}

// Poll removes up to take messages from the head of agentID's inbox and
// returns them in arrival order.
//
// The whole inbox is snapshotted, then exactly that many entries are
// trimmed from the head, so anything appended after the snapshot is left
// alone. References whose content has expired are dropped for good. The
// first take live references are returned and the rest are pushed back
// onto the head, ahead of any concurrent appends.
func (m *Mailbox) Poll(ctx context.Context, agentID string, take int) (*models.InboxBatch, error) {
	if err := ValidateTake(take); err != nil {
		return nil, err
	}

	snapshot, err := m.store.InboxSnapshot(ctx, agentID)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if len(snapshot) == 0 {
		return &models.InboxBatch{Messages: []models.Message{}}, nil
	}

	if m.afterSnapshot != nil {
		m.afterSnapshot()
	}

	if err := m.store.TrimInboxHead(ctx, agentID, len(snapshot)); err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	live, err := m.liveIDs(ctx, snapshot)
	if err != nil {
		m.requeue(ctx, agentID, snapshot)
		return nil, err
	}

	batch, keep := live, []string(nil)
	if len(live) > take {
		batch, keep = live[:take], live[take:]
	}

	if len(keep) > 0 {
		if err := m.store.RequeueInboxHead(ctx, agentID, keep); err != nil {
			// Nothing was pushed back, so the whole live list goes back
			// in order.
			m.requeue(ctx, agentID, live)
			return nil, apperr.StoreUnavailable(err)
		}
	}

	records, err := m.store.GetMessages(ctx, batch)
	if err != nil {
		// The batch is already off the inbox; put it back in front of
		// what was just requeued.
		m.requeue(ctx, agentID, batch)
		return nil, apperr.StoreUnavailable(err)
	}

	messages := make([]models.Message, 0, len(records))
	for _, rec := range records {
		// Expired between the existence check and the fetch.
		if rec == nil {
			metrics.ExpiredSkipped.Inc()
			continue
		}
		messages = append(messages, *rec)
	}
	metrics.MessagesPolled.Add(float64(len(messages)))

	return &models.InboxBatch{Messages: messages, Remaining: len(keep)}, nil
}

// liveIDs filters ids down to those whose content record still exists,
// preserving order.
func (m *Mailbox) liveIDs(ctx context.Context, ids []string) ([]string, error) {
	exists, err := m.store.MessagesExist(ctx, ids)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	live := make([]string, 0, len(ids))
	for i, id := range ids {
		if exists[i] {
			live = append(live, id)
		}
	}
	if dropped := len(ids) - len(live); dropped > 0 {
		metrics.ExpiredSkipped.Add(float64(dropped))
	}
	return live, nil
}

// requeue is the best-effort undo after a failure past the trim.
func (m *Mailbox) requeue(ctx context.Context, agentID string, ids []string) {
	if err := m.store.RequeueInboxHead(context.WithoutCancel(ctx), agentID, ids); err != nil {
		m.logger.Error().
			Err(err).
			Str("event", "requeue_failed").
			Str("agent_id", agentID).
			Int("lost", len(ids)).
			Msg("failed to restore inbox after poll error")
	}
}
