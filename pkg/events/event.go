package events

import (
	"context"
	"time"
)

// Event defines the contract for all session events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "NOTIFICATION").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher delivers events to whatever transport is wired in (event bus, NATS).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// SessionID returns the session the event belongs to, or "" for global events.
func SessionID(e Event) string {
	if e == nil {
		return ""
	}
	id, _ := e.Payload()["session_id"].(string)
	return id
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
