package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"
)

// UserPayload is the type-specific body of a user event. Events carry only the
// fields listed here; consumers must leave any other local columns untouched.
type UserPayload struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Role       string `json:"role,omitempty"`
	Status     string `json:"status,omitempty"`
	Department string `json:"department,omitempty"`
}

// UserEvent is the wire envelope for a user domain event. EventID is the
// idempotency key: two envelopes with the same EventID are the same occurrence,
// possibly redelivered by the broker.
type UserEvent struct {
	EventID       string      `json:"event_id"`
	CorrelationID string      `json:"correlation_id"`
	EventType     EventType   `json:"event_type"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Data          UserPayload `json:"data"`
}

// NewUserEvent stamps a fresh envelope around the given payload.
func NewUserEvent(eventType EventType, correlationID string, data UserPayload) UserEvent {
	return UserEvent{
		EventID:       uuid.New().String(),
		CorrelationID: correlationID,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	}
}

// DecodeUserEvent unmarshals and validates an event body. Unknown fields are
// ignored so newer producers can add fields without breaking older consumers.
func DecodeUserEvent(body []byte) (UserEvent, error) {
	var event UserEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return UserEvent{}, fmt.Errorf("decode user event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return UserEvent{}, err
	}
	return event, nil
}

// Validate checks the envelope and the required payload fields for the declared
// event type. Extra fields never fail validation, missing required ones do.
func (e UserEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("user event: missing event_id")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("user event %s: missing occurred_at", e.EventID)
	}

	switch e.EventType {
	case EventUserCreated:
		if e.Data.ID == "" || e.Data.Email == "" || e.Data.FullName == "" || e.Data.Role == "" {
			return fmt.Errorf("user.created event %s: id, email, full_name and role are required", e.EventID)
		}
	case EventUserUpdated, EventUserDeleted:
		if e.Data.ID == "" {
			return fmt.Errorf("%s event %s: id is required", e.EventType, e.EventID)
		}
	default:
		return fmt.Errorf("user event %s: unknown event_type %q", e.EventID, e.EventType)
	}

	return nil
}
