// Package testutil provides an in-process store and search index for tests.
package testutil

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cburnette/deaddrop/internal/models"
	"github.com/cburnette/deaddrop/internal/store"
)

// NewStore starts a miniredis server and returns a store connected to it.
// Both are torn down when the test ends.
func NewStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { client.Close() })

	return store.NewRedisStoreFromClient(client), mr
}

var phraseRegex = regexp.MustCompile(`"([^"]*)"`)

// Index evaluates the subset of the RediSearch query language the
// directory emits, directly over the agent hashes in miniredis.
type Index struct {
	MR *miniredis.Miniredis

	// Queries records every query string received.
	Queries []string
}

// NewIndex returns an index over mr.
func NewIndex(mr *miniredis.Miniredis) *Index {
	return &Index{MR: mr}
}

func (ix *Index) docs(query string) []models.AgentSummary {
	activeOnly := strings.Contains(query, "@active:{true}")
	var phrases []string
	for _, m := range phraseRegex.FindAllStringSubmatch(query, -1) {
		phrases = append(phrases, strings.ToLower(m[1]))
	}

	var out []models.AgentSummary
	for _, key := range ix.MR.Keys() {
		if !strings.HasPrefix(key, store.AgentKeyPrefix) || ix.MR.Type(key) != "hash" {
			continue
		}
		name := ix.MR.HGet(key, "name")
		desc := ix.MR.HGet(key, "description")
		if activeOnly && ix.MR.HGet(key, "active") != "true" {
			continue
		}
		if len(phrases) > 0 && !matchesAny(phrases, name, desc) {
			continue
		}
		out = append(out, models.AgentSummary{
			ID:          strings.TrimPrefix(key, store.AgentKeyPrefix),
			Name:        name,
			Description: desc,
		})
	}
	return out
}

func matchesAny(phrases []string, fields ...string) bool {
	for _, p := range phrases {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), p) {
				return true
			}
		}
	}
	return false
}

// Search implements directory.Index.
func (ix *Index) Search(_ context.Context, query string, limit int) ([]models.AgentSummary, error) {
	ix.Queries = append(ix.Queries, query)
	docs := ix.docs(query)
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Count implements directory.Index.
func (ix *Index) Count(_ context.Context, query string) (int64, error) {
	return int64(len(ix.docs(query))), nil
}
