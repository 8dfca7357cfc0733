package interfaces

import (
	"context"
	"time"
)

// EventType identifies the kind of event
type EventType string

const (
	// EventValueWritten fires when an unconfirmed value is written to a
	// writable state node (a control-point write awaiting dispatch)
	EventValueWritten EventType = "value_written"

	// EventMetricApplied fires after a realtime metric has been mirrored
	EventMetricApplied EventType = "metric_applied"

	// EventOrgActivated fires when an organization becomes the active one
	EventOrgActivated EventType = "org_activated"
)

// Event is a message passed through the event service
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes an event
type EventHandler func(ctx context.Context, event Event) error

// EventService provides in-process pub/sub for decoupled components
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
