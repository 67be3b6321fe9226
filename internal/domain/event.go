package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventConnectionStateChanged EventType = "connection.state_changed"

	EventCommandReceived   EventType = "command.received"
	EventCommandIgnored    EventType = "command.ignored"
	EventSelectionApplied  EventType = "selection.applied"
	EventSelectionReported EventType = "selection.reported"

	EventTransferStarted   EventType = "transfer.started"
	EventTransferCompleted EventType = "transfer.completed"
	EventTransferAborted   EventType = "transfer.aborted"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with the payload marshaled to JSON.
// A payload that fails to marshal is dropped; the event is still returned.
func NewEvent(t EventType, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// ConnectionEvent is the payload of EventConnectionStateChanged.
type ConnectionEvent struct {
	URI    string          `json:"uri"`
	State  ConnectionState `json:"state"`
	Reason string          `json:"reason,omitempty"`
}

// TransferEvent is the payload of the transfer.* events.
type TransferEvent struct {
	TransferID string `json:"transfer_id"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Error      string `json:"error,omitempty"`
}

// SelectionEvent is the payload of the selection.* events.
type SelectionEvent struct {
	Requested  int      `json:"requested"`
	Resolved   int      `json:"resolved"`
	UniqueIDs  []string `json:"unique_ids,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}
