package health

import "time"

// EventType identifies a health-change notification.
type EventType string

const (
	EventSourceHealthy   EventType = "source.healthy"
	EventSourceDegraded  EventType = "source.degraded"
	EventSourceUnhealthy EventType = "source.unhealthy"
	EventCircuitOpened   EventType = "circuit.opened"
	EventCircuitClosed   EventType = "circuit.closed"
)

// Event is a typed health-change message emitted by the registry.
type Event struct {
	Type     EventType `json:"type"`
	SourceID string    `json:"source_id"`
	Reason   string    `json:"reason,omitempty"`
	Failures int       `json:"failures,omitempty"` // consecutive failures at emission time
	At       time.Time `json:"at"`
}

// eventBuffer is the per-subscriber channel capacity.
const eventBuffer = 64
