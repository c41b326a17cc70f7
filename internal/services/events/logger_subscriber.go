package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// AllEventTypes lists every event the session layer publishes
var AllEventTypes = []interfaces.EventType{
	interfaces.EventSessionStarted,
	interfaces.EventSessionStateChanged,
	interfaces.EventSessionClosed,
	interfaces.EventApplicationCompleted,
	interfaces.EventCheckpointEntered,
	interfaces.EventJobsFetched,
}

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if event.UserID != "" {
			logEvent = logEvent.Str("user_id", event.UserID)
		}
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if jobID, ok := payload["job_id"].(string); ok {
				logEvent = logEvent.Str("job_id", jobID)
			}
			if status, ok := payload["status"].(string); ok {
				logEvent = logEvent.Str("status", status)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
