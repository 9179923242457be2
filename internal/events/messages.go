package events

import (
	"encoding/json"
	"time"
)

// AuditMessage is the lightweight notification published after a
// command commits. It carries only identifiers; a consumer fetches
// whatever state it needs through the API.
type AuditMessage struct {
	Action     string    `json:"action"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAuditMessage creates an audit message stamped with the current time.
func NewAuditMessage(action, entityKind, entityID string) *AuditMessage {
	return &AuditMessage{
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *AuditMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AuditMessageFromJSON creates a message from JSON bytes.
func AuditMessageFromJSON(data []byte) (*AuditMessage, error) {
	var msg AuditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
