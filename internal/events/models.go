package events

import "time"

// Event is an immutable call lifecycle record.
//
// Invariants:
// - Events are never updated or deleted.
// - company_id is required; subscribers are scoped by company.
// - delivery is best-effort and never blocks the call flow.
type Event struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`

	// Status is the call status at the time of the event.
	Status string `json:"status,omitempty"`
	// Message is a short human-readable description for dashboards.
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventCallStarted     EventType = "call.started"
	EventCallTransferred EventType = "call.transferred"
	EventCallEnded       EventType = "call.ended"
)
