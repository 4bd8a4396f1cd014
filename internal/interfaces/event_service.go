package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventFormatJobCompleted EventType = "format_job_completed"
	EventFormatJobFailed    EventType = "format_job_failed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus. Delivery is best-effort with no
// replay: events published with no subscriber are lost and clients recover by
// polling the job read path.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
