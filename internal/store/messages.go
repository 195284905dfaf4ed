package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cburnette/deaddrop/internal/models"
)

// MessageTTL bounds how long a message content record survives.
const MessageTTL = 7 * 24 * time.Hour

// InboxKeyPattern matches every inbox list.
const InboxKeyPattern = "inbox:*"

// MessageKeyPattern matches every message content record.
const MessageKeyPattern = "message:*"

// DeliverMessage writes the content record with its TTL and appends the
// message id to the tail of every recipient's inbox, in one MULTI/EXEC
// batch.
func (s *RedisStore) DeliverMessage(ctx context.Context, msg *models.Message, ttl time.Duration) error {
	to, err := json.Marshal(msg.To)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"from":      msg.From,
		"to":        string(to),
		"body":      msg.Body,
		"timestamp": formatTime(msg.Timestamp),
	}
	if msg.ReplyTo != "" {
		fields["reply_to"] = msg.ReplyTo
	}

	key := messageKey(msg.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		for _, recipient := range msg.To {
			pipe.RPush(ctx, inboxKey(recipient), msg.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver %s: %w", msg.ID, err)
	}
	return nil
}

// InboxSnapshot returns the full current contents of an inbox, head first.
func (s *RedisStore) InboxSnapshot(ctx context.Context, agentID string) ([]string, error) {
	ids, err := s.client.LRange(ctx, inboxKey(agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read inbox %s: %w", agentID, err)
	}
	return ids, nil
}

// TrimInboxHead removes exactly n entries from the head of an inbox.
// Entries appended after the snapshot that produced n survive.
func (s *RedisStore) TrimInboxHead(ctx context.Context, agentID string, n int) error {
	if err := s.client.LTrim(ctx, inboxKey(agentID), int64(n), -1).Err(); err != nil {
		return fmt.Errorf("trim inbox %s: %w", agentID, err)
	}
	return nil
}

// RequeueInboxHead pushes ids back onto the head of an inbox so that the
// list reads ids[0], ids[1], ... followed by whatever was already there.
func (s *RedisStore) RequeueInboxHead(ctx context.Context, agentID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	// LPUSH inserts each value at the head in turn, so push in reverse.
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[len(ids)-1-i] = id
	}
	if err := s.client.LPush(ctx, inboxKey(agentID), values...).Err(); err != nil {
		return fmt.Errorf("requeue inbox %s: %w", agentID, err)
	}
	return nil
}

// MessagesExist reports, for each id, whether its content record is
// still present. One pipelined round trip.
func (s *RedisStore) MessagesExist(ctx context.Context, ids []string) ([]bool, error) {
	cmds := make([]*redis.IntCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Exists(ctx, messageKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check messages: %w", err)
	}

	exists := make([]bool, len(ids))
	for i, cmd := range cmds {
		exists[i] = cmd.Val() > 0
	}
	return exists, nil
}

// GetMessages loads content records in one pipelined round trip. An id
// whose record has expired comes back as a nil entry.
func (s *RedisStore) GetMessages(ctx context.Context, ids []string) ([]*models.Message, error) {
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, messageKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	msgs := make([]*models.Message, len(ids))
	for i, cmd := range cmds {
		if fields := cmd.Val(); len(fields) > 0 {
			msgs[i] = decodeMessage(ids[i], fields)
		}
	}
	return msgs, nil
}

// InboxLengths returns the queue length of each inbox key.
func (s *RedisStore) InboxLengths(ctx context.Context, keys []string) ([]int64, error) {
	cmds := make([]*redis.IntCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.LLen(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inbox lengths: %w", err)
	}

	lengths := make([]int64, len(keys))
	for i, cmd := range cmds {
		lengths[i] = cmd.Val()
	}
	return lengths, nil
}

// InboxOwner strips the key prefix from an inbox key.
func InboxOwner(key string) string {
	return strings.TrimPrefix(key, "inbox:")
}

// decodeMessage builds a Message from its hash fields. An unparseable
// recipient list decodes as empty rather than failing the whole batch.
func decodeMessage(messageID string, fields map[string]string) *models.Message {
	msg := &models.Message{
		ID:        messageID,
		From:      fields["from"],
		Body:      fields["body"],
		Timestamp: parseTime(fields["timestamp"]),
		ReplyTo:   fields["reply_to"],
	}
	if err := json.Unmarshal([]byte(fields["to"]), &msg.To); err != nil || msg.To == nil {
		msg.To = []string{}
	}
	return msg
}
