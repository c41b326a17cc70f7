package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventSessionStarted       EventType = "session_started"
	EventSessionStateChanged  EventType = "session_state_changed"
	EventSessionClosed        EventType = "session_closed"
	EventApplicationCompleted EventType = "application_completed"
	EventCheckpointEntered    EventType = "checkpoint_entered"
	EventJobsFetched          EventType = "jobs_fetched"
)

// Event represents a system event
type Event struct {
	Type    EventType
	UserID  string
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
