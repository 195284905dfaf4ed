package models

// InboxEntry is the queue length of one agent's inbox.
type InboxEntry struct {
	AgentID string `json:"agent_id"`
	Count   int64  `json:"count"`
}

// AdminStats is a best-effort point-in-time snapshot of the service.
type AdminStats struct {
	Agents struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	} `json:"agents"`
	Messages struct {
		TotalStored int64 `json:"total_stored"`
	} `json:"messages"`
	Inboxes struct {
		TotalQueued int64        `json:"total_queued"`
		Busiest     []InboxEntry `json:"busiest"`
	} `json:"inboxes"`
	SearchIndex struct {
		NumDocs int64 `json:"num_docs"`
	} `json:"search_index"`
	Redis struct {
		UsedMemoryHuman  string `json:"used_memory_human"`
		ConnectedClients int64  `json:"connected_clients"`
		UptimeSeconds    int64  `json:"uptime_seconds"`
	} `json:"redis"`
}
