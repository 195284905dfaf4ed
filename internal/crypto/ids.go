package crypto

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	agentIDPrefix   = "dd_"
	messageIDPrefix = "msg_"
)

// NewAgentID generates an agent id from a time-ordered UUID v7.
func NewAgentID() string {
	return agentIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// NewMessageID generates a message id from a ULID.
func NewMessageID() string {
	return messageIDPrefix + ulid.Make().String()
}

// IsAgentID reports whether s has the shape of an issued agent id. Ids
// without the prefix cannot name an agent record.
func IsAgentID(s string) bool {
	return strings.HasPrefix(s, agentIDPrefix) && len(s) > len(agentIDPrefix)
}
