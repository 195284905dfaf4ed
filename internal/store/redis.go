package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the only owner of the key layout in the external store.
// Every other package reaches the store through its methods.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the store at redisURL. The connection is
// pinned to RESP2 so that FT.SEARCH replies arrive as flat
// count-prefixed arrays.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.Protocol = 2

	client := redis.NewClient(opts)
	client.AddHook(latencyHook{})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

const createdIndexKey = "agents:created"

// AgentKeyPrefix is the hash prefix the search index is defined over.
const AgentKeyPrefix = "agent:"

func agentKey(agentID string) string {
	return AgentKeyPrefix + agentID
}

// nameKey is a string key, so the hash-only search index never sees it.
func nameKey(name string) string {
	return fmt.Sprintf("agent:name:%s", name)
}

func authKey(digest string) string {
	return fmt.Sprintf("auth:%s", digest)
}

func messageKey(messageID string) string {
	return fmt.Sprintf("message:%s", messageID)
}

func inboxKey(agentID string) string {
	return fmt.Sprintf("inbox:%s", agentID)
}

// IncrWindow increments a counter and (re)sets its expiry in one
// MULTI/EXEC batch, returning the post-increment value.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// ScanKeys returns every key matching pattern, iterating with SCAN.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Info returns the raw INFO text for the given sections.
func (s *RedisStore) Info(ctx context.Context, sections ...string) (string, error) {
	return s.client.Info(ctx, sections...).Result()
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
