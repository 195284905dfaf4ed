package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cburnette/deaddrop/internal/models"
	"github.com/cburnette/deaddrop/internal/store"
)

// IndexName is the RediSearch index over agent hashes.
const IndexName = "idx:agents"

// Index is the query contract of the external full-text index.
type Index interface {
	// Search runs query and returns at most limit documents.
	Search(ctx context.Context, query string, limit int) ([]models.AgentSummary, error)
	// Count returns the number of documents matching query.
	Count(ctx context.Context, query string) (int64, error)
}

// RedisIndex is an Index backed by the RediSearch module.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex creates a RedisIndex. The client must speak RESP2.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// Ensure creates the index if it does not exist. The index is defined
// over the agent hash prefix, so every agent hash write is also a
// search document upsert.
func (ix *RedisIndex) Ensure(ctx context.Context) error {
	err := ix.client.Do(ctx,
		"FT.CREATE", IndexName,
		"ON", "HASH",
		"PREFIX", "1", store.AgentKeyPrefix,
		"SCHEMA",
		"name", "TEXT",
		"description", "TEXT",
		"active", "TAG",
	).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return fmt.Errorf("create search index: %w", err)
	}
	return nil
}

// Search implements Index.
func (ix *RedisIndex) Search(ctx context.Context, query string, limit int) ([]models.AgentSummary, error) {
	reply, err := ix.client.Do(ctx, "FT.SEARCH", IndexName, query, "LIMIT", 0, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	_, results, err := ParseSearchReply(reply)
	return results, err
}

// Count implements Index.
func (ix *RedisIndex) Count(ctx context.Context, query string) (int64, error) {
	reply, err := ix.client.Do(ctx, "FT.SEARCH", IndexName, query, "LIMIT", 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	total, _, err := ParseSearchReply(reply)
	return total, err
}

var errUnexpectedReply = errors.New("unexpected FT.SEARCH reply")

// ParseSearchReply decodes a RESP2 FT.SEARCH reply: a total count
// followed by (key, [field, value, ...]) pairs. Malformed pairs are
// skipped and unrecognized fields ignored.
func ParseSearchReply(reply interface{}) (int64, []models.AgentSummary, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return 0, nil, errUnexpectedReply
	}
	total, ok := items[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("%w: count is %T", errUnexpectedReply, items[0])
	}

	results := make([]models.AgentSummary, 0, (len(items)-1)/2)
	for i := 1; i+1 < len(items); i += 2 {
		key, ok := items[i].(string)
		if !ok {
			continue
		}
		fields, ok := items[i+1].([]interface{})
		if !ok {
			continue
		}

		doc := models.AgentSummary{ID: strings.TrimPrefix(key, store.AgentKeyPrefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			switch name {
			case "name":
				doc.Name = value
			case "description":
				doc.Description = value
			}
		}
		results = append(results, doc)
	}
	return total, results, nil
}
