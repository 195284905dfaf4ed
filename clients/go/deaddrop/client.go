// Package deaddrop provides a client for the deaddrop agent mailbox service.
package deaddrop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultBaseURL is used when no base URL is given.
const DefaultBaseURL = "http://localhost:8080"

// Client is a deaddrop API client.
type Client struct {
	BaseURL     string
	ConfigDir   string
	AgentID     string
	APIKey      string
	AdminSecret string
	HTTPClient  *http.Client
}

// Config holds the saved agent credentials.
type Config struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	APIKey  string `json:"api_key"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deaddrop error %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new client. Saved credentials are loaded from
// ConfigDir if present.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	configDir := os.Getenv("DEADDROP_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".deaddrop")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

func (c *Client) configFile() string {
	return filepath.Join(c.ConfigDir, "agent.json")
}

// LoadConfig loads agent credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(c.configFile())
	if err != nil {
		return err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	c.AgentID = cfg.AgentID
	c.APIKey = cfg.APIKey
	return nil
}

// SaveConfig saves agent credentials to disk, readable by the owner only.
func (c *Client) SaveConfig(name string) error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(Config{AgentID: c.AgentID, Name: name, APIKey: c.APIKey}, "", "  ")
	return os.WriteFile(c.configFile(), data, 0600)
}

// doRequest performs an HTTP request and decodes a JSON response into out
// when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}, bearer string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Agent is a public agent profile.
type Agent struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Registration is the response from agent registration.
type Registration struct {
	AgentID     string    `json:"agent_id"`
	APIKey      string    `json:"api_key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Register registers a new agent and adopts its credentials.
func (c *Client) Register(ctx context.Context, name, description string) (*Registration, error) {
	var resp Registration
	req := map[string]string{"name": name, "description": description}
	if err := c.doRequest(ctx, http.MethodPost, "/agent/register", req, &resp, ""); err != nil {
		return nil, err
	}
	c.AgentID = resp.AgentID
	c.APIKey = resp.APIKey
	return &resp, nil
}

// Activate marks the client's agent active.
func (c *Client) Activate(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/agent/activate", nil, nil, c.APIKey)
}

// Deactivate marks the client's agent inactive.
func (c *Client) Deactivate(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/agent/deactivate", nil, nil, c.APIKey)
}

// UpdateProfile replaces the client's agent description.
func (c *Client) UpdateProfile(ctx context.Context, description string) error {
	req := map[string]string{"description": description}
	return c.doRequest(ctx, http.MethodPut, "/agent/profile", req, nil, c.APIKey)
}

// GetAgent fetches an agent's public profile.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var resp Agent
	if err := c.doRequest(ctx, http.MethodGet, "/agent/"+agentID, nil, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AgentSummary is an agent as listed or found by search.
type AgentSummary struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ListAgents lists active agents, newest first.
func (c *Client) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	var resp struct {
		Agents []AgentSummary `json:"agents"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/agents", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// SearchResponse is the response from searching agents.
type SearchResponse struct {
	Results []AgentSummary `json:"results"`
	Note    string         `json:"note,omitempty"`
}

// Search finds active agents matching any of the phrases.
func (c *Client) Search(ctx context.Context, phrases ...string) (*SearchResponse, error) {
	var resp SearchResponse
	req := map[string][]string{"phrases": phrases}
	if err := c.doRequest(ctx, http.MethodPost, "/agents/search", req, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendRequest is the request body for sending a message.
type SendRequest struct {
	To      []string `json:"to"`
	Body    string   `json:"body"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// SendResponse acknowledges a sent message.
type SendResponse struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Send sends a message to one or more agents.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/messages/send", req, &resp, c.APIKey); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message is a received message.
type Message struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// PollResponse is one consumed batch.
type PollResponse struct {
	Messages  []Message `json:"messages"`
	Remaining int       `json:"remaining"`
}

// Poll consumes up to take messages; take <= 0 uses the server default.
func (c *Client) Poll(ctx context.Context, take int) (*PollResponse, error) {
	path := "/messages"
	if take > 0 {
		path += "?take=" + strconv.Itoa(take)
	}
	var resp PollResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, c.APIKey); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches the operator snapshot using AdminSecret. The snapshot is
// returned undecoded.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doRequest(ctx, http.MethodGet, "/admin/stats", nil, &resp, c.AdminSecret); err != nil {
		return nil, err
	}
	return resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                       `json:"status"`
	Version   string                       `json:"version"`
	Checks    map[string]map[string]string `json:"checks"`
	Timestamp string                       `json:"timestamp"`
}

// Health checks server health. A degraded server is reported as an
// *APIError with status 503.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}
