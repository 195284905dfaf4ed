package registry

import (
	"context"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/crypto"
	"github.com/cburnette/deaddrop/internal/metrics"
	"github.com/cburnette/deaddrop/internal/models"
)

// reservation is a held name claim. It must end in exactly one of
// commit or release.
type reservation struct {
	r       *Registry
	name    string
	agentID string
}

// reserve claims name for a freshly generated agent id with the store's
// set-if-absent primitive.
func (r *Registry) reserve(ctx context.Context, name string) (*reservation, error) {
	agentID := crypto.NewAgentID()
	ok, err := r.store.ReserveName(ctx, name, agentID)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if !ok {
		return nil, apperr.New(apperr.AlreadyExists, "name '%s' is already taken", name)
	}
	return &reservation{r: r, name: name, agentID: agentID}, nil
}

// commit persists the agent record. On failure the reservation is
// released and Unavailable returned.
func (res *reservation) commit(ctx context.Context, agent *models.Agent) error {
	if err := res.r.store.CreateAgent(ctx, agent); err != nil {
		res.release(ctx)
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// release deletes the name claim. It is not transactional with the
// reserve step: if the delete fails the name stays blocked, so the
// failure is logged and counted for operators.
func (res *reservation) release(ctx context.Context) {
	if err := res.r.store.ReleaseName(context.WithoutCancel(ctx), res.name); err != nil {
		metrics.NameReleaseFailures.Inc()
		res.r.logger.Error().
			Err(err).
			Str("type", "security").
			Str("event", "name_release_failed").
			Str("name", res.name).
			Str("agent_id", res.agentID).
			Msg("name reservation leaked after failed registration")
		return
	}
	res.r.logger.Warn().
		Str("event", "name_released").
		Str("name", res.name).
		Msg("name reservation released after failed registration")
}
