// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Transaction events
	TransactionSubmitted EventType = "transaction.submitted"
	TransactionConfirmed EventType = "transaction.confirmed"
	TransactionFailed    EventType = "transaction.failed"

	// Batch events
	BatchStarted   EventType = "batch.started"
	BatchCompleted EventType = "batch.completed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of the given type with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TransactionSubmittedEvent is emitted after the first successful submission.
type TransactionSubmittedEvent struct {
	BaseEvent
	Signature string
	Size      int
}

// TransactionConfirmedEvent is emitted when a transaction reaches the requested commitment.
type TransactionConfirmedEvent struct {
	BaseEvent
	Signature string
	Slot      uint64
	Latency   time.Duration
}

// TransactionFailedEvent is emitted on any terminal failure (transport, timeout, on-chain).
type TransactionFailedEvent struct {
	BaseEvent
	Signature string // пусто, если отправка не удалась
	Reason    string
	Error     error
}

// BatchStartedEvent is emitted once the batch has been signed and sending begins.
type BatchStartedEvent struct {
	BaseEvent
	BatchID string
	Policy  string
	Size    int
}

// BatchCompletedEvent is emitted when every send of the batch has settled.
type BatchCompletedEvent struct {
	BaseEvent
	BatchID   string
	Policy    string
	Succeeded int
	Failed    int
	Halted    bool
	StopIndex int
}
