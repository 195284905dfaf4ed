// Package registry creates agents and mutates their profiles.
package registry

import (
	"context"
	"regexp"
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
	minNameLen        = 3
	maxNameLen        = 128
	maxDescriptionLen = 1024
)

var nameCharsRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Registry owns the agent lifecycle.
type Registry struct {
	store  *store.RedisStore
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Registry.
func New(s *store.RedisStore, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  s,
		logger: logger.With().Str("component", "registry").Logger(),
		now:    time.Now,
	}
}

// NormalizeName trims surrounding whitespace; names are otherwise
// case-sensitive and stored as given.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateName checks length and character set of a normalized name.
func ValidateName(name string) error {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return apperr.New(apperr.InvalidArgument, "name must be %d-%d characters", minNameLen, maxNameLen)
	}
	if !nameCharsRegex.MatchString(name) {
		return apperr.New(apperr.InvalidArgument, "name must contain only alphanumeric characters, hyphens, or underscores")
	}
	return nil
}

// ValidateDescription trims and checks a description, returning the
// trimmed value.
func ValidateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(description); n == 0 || n > maxDescriptionLen {
		return "", apperr.New(apperr.InvalidArgument, "description must be 1-%d characters", maxDescriptionLen)
	}
	return description, nil
}

// Register creates a new agent. The name is reserved first; the agent
// record is then committed, and on commit failure the reservation is
// released. The returned Registration holds the only copy of the
// plaintext API key.
func (r *Registry) Register(ctx context.Context, name, description string) (*models.Registration, error) {
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	description, err := ValidateDescription(description)
	if err != nil {
		return nil, err
	}

	res, err := r.reserve(ctx, name)
	if err != nil {
		return nil, err
	}

	apiKey, digest, err := crypto.GenerateAPIKey()
	if err != nil {
		res.release(ctx)
		return nil, apperr.Wrap(apperr.Unavailable, err, "failed to generate api key")
	}

	agent := &models.Agent{
		ID:          res.agentID,
		Name:        name,
		Description: description,
		Active:      true,
		CreatedAt:   r.now().UTC().Truncate(time.Second),
		AuthHash:    digest,
	}

	if err := res.commit(ctx, agent); err != nil {
		return nil, err
	}

	metrics.AgentsRegistered.Inc()
	r.logger.Info().
		Str("agent_id", agent.ID).
		Str("name", agent.Name).
		Msg("agent registered")

	return &models.Registration{Agent: agent, APIKey: apiKey}, nil
}

// Get returns an agent record, NotFound if absent.
func (r *Registry) Get(ctx context.Context, agentID string) (*models.Agent, error) {
	if !crypto.IsAgentID(agentID) {
		return nil, apperr.New(apperr.NotFound, "agent '%s' not found", agentID)
	}
	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if agent == nil {
		return nil, apperr.New(apperr.NotFound, "agent '%s' not found", agentID)
	}
	return agent, nil
}

// SetActive activates or deactivates an agent. The search document
// follows the hash, so deactivated agents drop out of search results.
func (r *Registry) SetActive(ctx context.Context, agentID string, active bool) error {
	if _, err := r.requireAgent(ctx, agentID); err != nil {
		return err
	}
	if err := r.store.SetAgentActive(ctx, agentID, active, r.now()); err != nil {
		return apperr.StoreUnavailable(err)
	}
	r.logger.Info().
		Str("agent_id", agentID).
		Bool("active", active).
		Msg("agent activity changed")
	return nil
}

// UpdateProfile replaces an agent's description. Names are immutable.
func (r *Registry) UpdateProfile(ctx context.Context, agentID, description string) error {
	description, err := ValidateDescription(description)
	if err != nil {
		return err
	}
	if _, err := r.requireAgent(ctx, agentID); err != nil {
		return err
	}
	if err := r.store.UpdateDescription(ctx, agentID, description, r.now()); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// ListActive returns active agents, newest first. With limit > 0 the
// creation index is read in pages of limit ids until enough active
// agents are found; limit <= 0 reads it in one pass.
func (r *Registry) ListActive(ctx context.Context, limit int) ([]models.AgentSummary, error) {
	summaries := []models.AgentSummary{}
	for offset := 0; ; offset += limit {
		ids, err := r.store.RecentAgentIDs(ctx, offset, limit)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		if len(ids) == 0 {
			return summaries, nil
		}
		agents, err := r.store.GetAgents(ctx, ids)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}

		for _, a := range agents {
			if a == nil || !a.Active {
				continue
			}
			summaries = append(summaries, models.AgentSummary{
				ID:          a.ID,
				Name:        a.Name,
				Description: a.Description,
				CreatedAt:   a.CreatedAt.Format(time.RFC3339),
			})
			if limit > 0 && len(summaries) == limit {
				return summaries, nil
			}
		}
		if limit <= 0 || len(ids) < limit {
			return summaries, nil
		}
	}
}

// requireAgent loads the record an authenticated id points at. A token
// whose agent record is gone is treated as invalid.
func (r *Registry) requireAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if agent == nil {
		return nil, apperr.New(apperr.Unauthenticated, "invalid or missing auth token")
	}
	return agent, nil
}
