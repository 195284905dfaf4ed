package models

import "time"

// Agent represents a registered agent identity.
type Agent struct {
	ID          string    `json:"agent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	AuthHash    string    `json:"-"`
}

// Registration is returned once, at registration time. APIKey is never
// retrievable again.
type Registration struct {
	Agent  *Agent
	APIKey string
}

// AgentSummary is an agent as it appears in listings and search results.
type AgentSummary struct {
	ID          string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at,omitempty"`
}
