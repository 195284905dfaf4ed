package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cburnette/deaddrop/internal/api/middleware"
)

// listLimit caps GET /agents.
const listLimit = 100

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RegisterResponse carries the one-time API key.
type RegisterResponse struct {
	AgentID     string    `json:"agent_id"`
	APIKey      string    `json:"api_key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfileRequest is the body of PUT /agent/profile.
type ProfileRequest struct {
	Description string `json:"description"`
}

// Register handles agent registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	reg, err := h.registry.Register(r.Context(), req.Name, req.Description)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{
		AgentID:     reg.Agent.ID,
		APIKey:      reg.APIKey,
		Name:        reg.Agent.Name,
		Description: reg.Agent.Description,
		Active:      reg.Agent.Active,
		CreatedAt:   reg.Agent.CreatedAt,
	})
}

// Activate makes the caller discoverable and able to send and receive.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate hides the caller from search and stops new deliveries.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if err := h.registry.SetActive(r.Context(), middleware.GetAgentID(r.Context()), active); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile replaces the caller's description.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.registry.UpdateProfile(r.Context(), middleware.GetAgentID(r.Context()), req.Description); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAgent returns an agent's public profile.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, agent)
}

// ListAgents returns active agents, newest first.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.registry.ListActive(r.Context(), listLimit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}
