package routing

// Decision is the provider-agnostic outcome of an escalation.
//
// It contains only what the telephony adapter needs to execute it.
type Decision struct {
	CompanyID string `json:"company_id"`
	CallID    string `json:"call_id,omitempty"`

	Action    Action `json:"action"`
	ConnectTo string `json:"connect_to,omitempty"`

	// Reason is intended for logs and events.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionConnect Action = "connect"
	ActionHangup  Action = "hangup"
)
