// Package stats computes the admin rollup.
package stats

import (
	"bufio"
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/directory"
	"github.com/cburnette/deaddrop/internal/models"
	"github.com/cburnette/deaddrop/internal/store"
)

// BusiestLimit is how many inboxes the rollup lists.
const BusiestLimit = 10

// Aggregator reads figures from the store and the search index.
type Aggregator struct {
	store  *store.RedisStore
	index  directory.Index
	logger zerolog.Logger
}

// New creates an Aggregator.
func New(s *store.RedisStore, index directory.Index, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  s,
		index:  index,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// Collect builds a snapshot. Store figures are required; index and
// server figures are filled in when available and left zero otherwise.
// Figures are read independently and need not agree with each other.
func (a *Aggregator) Collect(ctx context.Context) (*models.AdminStats, error) {
	var out models.AdminStats

	total, err := a.store.CountAgents(ctx)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out.Agents.Total = total

	messageKeys, err := a.store.ScanKeys(ctx, store.MessageKeyPattern)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out.Messages.TotalStored = int64(len(messageKeys))

	queued, busiest, err := a.inboxes(ctx)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out.Inboxes.TotalQueued = queued
	out.Inboxes.Busiest = busiest

	if n, err := a.index.Count(ctx, directory.ActiveQuery); err == nil {
		out.Agents.Active = n
	} else {
		a.logger.Warn().Err(err).Msg("active count unavailable")
	}
	if n, err := a.index.Count(ctx, directory.AllQuery); err == nil {
		out.SearchIndex.NumDocs = n
	} else {
		a.logger.Warn().Err(err).Msg("index size unavailable")
	}

	if info, err := a.store.Info(ctx, "memory", "clients", "server"); err == nil {
		fields := ParseInfo(info)
		out.Redis.UsedMemoryHuman = fields["used_memory_human"]
		out.Redis.ConnectedClients, _ = strconv.ParseInt(fields["connected_clients"], 10, 64)
		out.Redis.UptimeSeconds, _ = strconv.ParseInt(fields["uptime_in_seconds"], 10, 64)
	} else {
		a.logger.Warn().Err(err).Msg("server info unavailable")
	}

	return &out, nil
}

func (a *Aggregator) inboxes(ctx context.Context) (int64, []models.InboxEntry, error) {
	keys, err := a.store.ScanKeys(ctx, store.InboxKeyPattern)
	if err != nil {
		return 0, nil, err
	}
	if len(keys) == 0 {
		return 0, []models.InboxEntry{}, nil
	}
	lengths, err := a.store.InboxLengths(ctx, keys)
	if err != nil {
		return 0, nil, err
	}

	var total int64
	entries := make([]models.InboxEntry, 0, len(keys))
	for i, key := range keys {
		if lengths[i] == 0 {
			continue
		}
		total += lengths[i]
		entries = append(entries, models.InboxEntry{AgentID: store.InboxOwner(key), Count: lengths[i]})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].AgentID < entries[j].AgentID
	})
	if len(entries) > BusiestLimit {
		entries = entries[:BusiestLimit]
	}
	return total, entries, nil
}

// ParseInfo reads the key:value lines of an INFO reply.
func ParseInfo(info string) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}
