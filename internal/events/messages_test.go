package events

import (
	"testing"
	"time"
)

func TestNewAuditMessage(t *testing.T) {
	msg := NewAuditMessage("MARK_PAID", "instance", "abc-123")

	if msg.Action != "MARK_PAID" {
		t.Errorf("Action = %v, want MARK_PAID", msg.Action)
	}
	if msg.EntityKind != "instance" {
		t.Errorf("EntityKind = %v, want instance", msg.EntityKind)
	}
	if msg.EntityID != "abc-123" {
		t.Errorf("EntityID = %v, want abc-123", msg.EntityID)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestAuditMessage_JSON(t *testing.T) {
	timestamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &AuditMessage{
		Action:     "ADD_PAYMENT",
		EntityKind: "instance",
		EntityID:   "xyz",
		Timestamp:  timestamp,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := AuditMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("AuditMessageFromJSON() error = %v", err)
	}

	if parsed.Action != msg.Action {
		t.Errorf("Parsed Action = %v, want %v", parsed.Action, msg.Action)
	}
	if parsed.EntityID != msg.EntityID {
		t.Errorf("Parsed EntityID = %v, want %v", parsed.EntityID, msg.EntityID)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestAuditMessage_InvalidJSON(t *testing.T) {
	if _, err := AuditMessageFromJSON([]byte(`{"action": 42}`)); err == nil {
		t.Error("AuditMessageFromJSON() should fail with invalid JSON")
	}
}
