// Package events carries request lifecycle notifications out of the core.
// Delivery (push, email) is an external concern behind the Dispatcher
// interface; the core only guarantees that an event is offered once,
// after the state change that caused it has been persisted.
package events

import "time"

// Type identifies an event kind.
type Type string

const (
	TypeRequestCreated   Type = "request_created"
	TypeRequestAccepted  Type = "request_accepted"
	TypeRequestRejected  Type = "request_rejected"
	TypeRequestCancelled Type = "request_cancelled"
)

// Event is a lifecycle notification. RecipientID names the party that
// should be told; payload fields identify the subject.
type Event struct {
	Type        Type      `json:"type"`
	RequestID   string    `json:"request_id"`
	FoodID      string    `json:"food_id"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Emitter accepts events for asynchronous delivery. Emit must never
// block the caller; an emitter under pressure drops rather than stalls
// a request handler.
type Emitter interface {
	Emit(ev Event)
	Close() error
}
