package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected string
	}{
		{"user created", EventUserCreated, "user.created"},
		{"user updated", EventUserUpdated, "user.updated"},
		{"user deleted", EventUserDeleted, "user.deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.et) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, string(tt.et))
			}
		})
	}
}

func TestNewUserEvent(t *testing.T) {
	payload := UserPayload{ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee"}
	event := NewUserEvent(EventUserCreated, "corr-1", payload)

	if event.EventID == "" {
		t.Error("expected a generated event_id")
	}
	if event.CorrelationID != "corr-1" {
		t.Errorf("unexpected correlation_id: %s", event.CorrelationID)
	}
	if event.OccurredAt.Location() != time.UTC {
		t.Error("occurred_at must be UTC")
	}
	if err := event.Validate(); err != nil {
		t.Errorf("fresh event should validate: %v", err)
	}
}

func TestValidateMissingRequiredField(t *testing.T) {
	event := UserEvent{
		EventID:    "e1",
		EventType:  EventUserCreated,
		OccurredAt: time.Now().UTC(),
		Data:       UserPayload{ID: "u1", FullName: "A B", Role: "Employee"}, // no email
	}

	err := event.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing email")
	}
	if !strings.Contains(err.Error(), "email") {
		t.Errorf("error should name the missing field set: %v", err)
	}
}

func TestValidateUnknownEventType(t *testing.T) {
	event := UserEvent{
		EventID:    "e2",
		EventType:  "user.exploded",
		OccurredAt: time.Now().UTC(),
		Data:       UserPayload{ID: "u1"},
	}

	if err := event.Validate(); err == nil {
		t.Fatal("expected validation error for unknown event type")
	}
}

func TestDecodeUserEventIgnoresUnknownFields(t *testing.T) {
	body := `{
		"event_id": "e3",
		"event_type": "user.updated",
		"occurred_at": "2026-01-02T15:04:05Z",
		"some_future_field": true,
		"data": {"id": "u1", "email": "new@x.com", "shoe_size": 44}
	}`

	event, err := DecodeUserEvent([]byte(body))
	if err != nil {
		t.Fatalf("expected unknown fields to be ignored, got %v", err)
	}
	if event.Data.Email != "new@x.com" {
		t.Errorf("unexpected email: %s", event.Data.Email)
	}
}

func TestDecodeUserEventMalformed(t *testing.T) {
	if _, err := DecodeUserEvent([]byte("{not json")); err == nil {
		t.Fatal("expected decode error for malformed body")
	}
}

func TestUserEventJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := UserEvent{
		EventID:       "evt-123",
		CorrelationID: "corr-123",
		EventType:     EventUserCreated,
		OccurredAt:    now,
		Data:          UserPayload{ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee"},
	}

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"occurred_at":"2026-03-01T12:00:00Z"`) {
		t.Errorf("occurred_at should serialize as RFC3339 UTC: %s", raw)
	}

	decoded, err := DecodeUserEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventID != event.EventID || decoded.Data != event.Data {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
