package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cburnette/deaddrop/internal/models"
)

// Agent hash field names. The search index schema reads name,
// description and active directly from these fields.
const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldActive      = "active"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldAuthHash    = "auth_hash"
)

// ReserveName claims name for agentID with SET NX. It returns false,
// without error, when the name is already held by another agent.
func (s *RedisStore) ReserveName(ctx context.Context, name, agentID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, nameKey(name), agentID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("reserve name %q: %w", name, err)
	}
	return ok, nil
}

// ReleaseName deletes a name reservation.
func (s *RedisStore) ReleaseName(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, nameKey(name)).Err(); err != nil {
		return fmt.Errorf("release name %q: %w", name, err)
	}
	return nil
}

// NameOwner returns the agent id holding name, or "" if it is free.
func (s *RedisStore) NameOwner(ctx context.Context, name string) (string, error) {
	id, err := s.client.Get(ctx, nameKey(name)).Result()
	if isNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get name %q: %w", name, err)
	}
	return id, nil
}

// CreateAgent writes the agent hash, the reverse auth index and the
// creation-order index in one MULTI/EXEC batch. Writing the hash also
// upserts the agent's search document.
func (s *RedisStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, agentKey(agent.ID), map[string]interface{}{
			fieldName:        agent.Name,
			fieldDescription: agent.Description,
			fieldActive:      formatBool(agent.Active),
			fieldCreatedAt:   formatTime(agent.CreatedAt),
			fieldAuthHash:    agent.AuthHash,
		})
		pipe.Set(ctx, authKey(agent.AuthHash), agent.ID, 0)
		pipe.ZAdd(ctx, createdIndexKey, redis.Z{
			Score:  float64(agent.CreatedAt.Unix()),
			Member: agent.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create agent %s: %w", agent.ID, err)
	}
	return nil
}

// GetAgent loads an agent record. A missing record returns nil, nil.
func (s *RedisStore) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	fields, err := s.client.HGetAll(ctx, agentKey(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeAgent(agentID, fields), nil
}

// AgentIDForDigest resolves an API key digest through the reverse auth
// index. An unknown digest returns "", nil.
func (s *RedisStore) AgentIDForDigest(ctx context.Context, digest string) (string, error) {
	id, err := s.client.Get(ctx, authKey(digest)).Result()
	if isNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	return id, nil
}

// ActiveStates reports, for each id, whether an agent record exists with
// active=true. One pipelined round trip.
func (s *RedisStore) ActiveStates(ctx context.Context, agentIDs []string) ([]bool, error) {
	cmds := make([]*redis.StringCmd, len(agentIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range agentIDs {
			cmds[i] = pipe.HGet(ctx, agentKey(id), fieldActive)
		}
		return nil
	})
	if err != nil && !isNil(err) {
		return nil, fmt.Errorf("check recipients: %w", err)
	}

	states := make([]bool, len(agentIDs))
	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil && !isNil(err) {
			return nil, fmt.Errorf("check recipient %s: %w", agentIDs[i], err)
		}
		states[i] = cmd.Val() == "true"
	}
	return states, nil
}

// SetAgentActive flips the active flag and stamps updated_at.
func (s *RedisStore) SetAgentActive(ctx context.Context, agentID string, active bool, now time.Time) error {
	err := s.client.HSet(ctx, agentKey(agentID), map[string]interface{}{
		fieldActive:    formatBool(active),
		fieldUpdatedAt: formatTime(now),
	}).Err()
	if err != nil {
		return fmt.Errorf("set active %s: %w", agentID, err)
	}
	return nil
}

// UpdateDescription rewrites the description and stamps updated_at.
func (s *RedisStore) UpdateDescription(ctx context.Context, agentID, description string, now time.Time) error {
	err := s.client.HSet(ctx, agentKey(agentID), map[string]interface{}{
		fieldDescription: description,
		fieldUpdatedAt:   formatTime(now),
	}).Err()
	if err != nil {
		return fmt.Errorf("update description %s: %w", agentID, err)
	}
	return nil
}

// RecentAgentIDs returns agent ids newest first, by creation time,
// skipping the first offset. count <= 0 returns everything after offset.
func (s *RedisStore) RecentAgentIDs(ctx context.Context, offset, count int) ([]string, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if count > 0 {
		opt.Offset, opt.Count = int64(offset), int64(count)
	}
	ids, err := s.client.ZRevRangeByScore(ctx, createdIndexKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if count <= 0 {
		if offset >= len(ids) {
			return nil, nil
		}
		ids = ids[offset:]
	}
	return ids, nil
}

// GetAgents loads several agent records in one pipelined round trip.
// Missing records come back as nil entries.
func (s *RedisStore) GetAgents(ctx context.Context, agentIDs []string) ([]*models.Agent, error) {
	cmds := make([]*redis.MapStringStringCmd, len(agentIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range agentIDs {
			cmds[i] = pipe.HGetAll(ctx, agentKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get agents: %w", err)
	}

	agents := make([]*models.Agent, len(agentIDs))
	for i, cmd := range cmds {
		if fields := cmd.Val(); len(fields) > 0 {
			agents[i] = decodeAgent(agentIDs[i], fields)
		}
	}
	return agents, nil
}

// CountAgents returns the size of the creation-order index.
func (s *RedisStore) CountAgents(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, createdIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

// decodeAgent builds an Agent from its hash fields. Missing fields take
// their zero value; a missing active flag reads as inactive.
func decodeAgent(agentID string, fields map[string]string) *models.Agent {
	return &models.Agent{
		ID:          agentID,
		Name:        fields[fieldName],
		Description: fields[fieldDescription],
		Active:      fields[fieldActive] == "true",
		CreatedAt:   parseTime(fields[fieldCreatedAt]),
		UpdatedAt:   parseTime(fields[fieldUpdatedAt]),
		AuthHash:    fields[fieldAuthHash],
	}
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
