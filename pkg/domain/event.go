package domain

import "time"

// EventType identifies an event published on the bus.
type EventType string

const (
	EventRunSubmitted  EventType = "run.submitted"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventRunCancelled  EventType = "run.cancelled"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
	EventNodeHealing   EventType = "node.healing"
	EventScaling       EventType = "scaling.changed"
)

// Event is a domain event.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Node      string         `json:"node,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
