package calls

import (
	"encoding/json"
	"errors"
	"time"
)

// Call is one telephone call handled by the assistant.
//
// Invariants:
// - Transcript is append-only while Status is in-progress and frozen afterwards.
// - Finalize runs exactly once; it is the only transition into a terminal status.
type Call struct {
	CallID    string `json:"call_id" db:"call_id"`
	CompanyID string `json:"company_id" db:"company_id"`

	From      string    `json:"from" db:"from_number"`
	To        string    `json:"to" db:"to_number"`
	Direction Direction `json:"direction" db:"direction"`

	Status Status `json:"status" db:"status"`
	State  State  `json:"state" db:"state"`

	Transcript Transcript `json:"transcript" db:"transcript"`

	TransferredToHuman bool       `json:"transferred_to_human" db:"transferred_to_human"`
	TransferReason     *string    `json:"transfer_reason,omitempty" db:"transfer_reason"`
	Sentiment          *Sentiment `json:"sentiment,omitempty" db:"sentiment"`

	StartTime  time.Time  `json:"start_time" db:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationMs int64      `json:"duration_ms" db:"duration_ms"`

	// Reprompts counts consecutive speech turns without caller input.
	Reprompts int `json:"reprompts" db:"reprompts"`
	// Scenario is the last scenario selected for this call, if any.
	Scenario string   `json:"scenario,omitempty" db:"scenario"`
	Actions  []string `json:"actions,omitempty" db:"actions"`

	// ProfileSnapshot is the company configuration resolved when the call was
	// answered, encoded by the session. It is written by Create only.
	ProfileSnapshot json.RawMessage `json:"-" db:"profile_snapshot"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusInProgress  Status = "in-progress"
	StatusCompleted   Status = "completed"
	StatusMissed      Status = "missed"
	StatusTransferred Status = "transferred"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusMissed || s == StatusTransferred
}

// State is the conversation state of the call session.
type State string

const (
	StateRinging     State = "ringing"
	StateGreeting    State = "greeting"
	StateListening   State = "listening"
	StateProcessing  State = "processing"
	StateResponding  State = "responding"
	StateEnded       State = "ended"
	StateTransferred State = "transferred"
)

type Overall string

const (
	SentimentPositive Overall = "positive"
	SentimentNegative Overall = "negative"
	SentimentNeutral  Overall = "neutral"
)

type Sentiment struct {
	Overall Overall `json:"overall"`
	Score   float64 `json:"score"`
}

var (
	ErrNotFound      = errors.New("calls: not found")
	ErrAlreadyExists = errors.New("calls: already exists")
	ErrCallFinalized = errors.New("calls: call finalized")
	ErrInvalidCall   = errors.New("calls: invalid call")
)

// Finalize moves the call into a terminal status. The transcript is frozen from then on.
// sentiment may be nil (no caller speech).
func (c *Call) Finalize(status Status, end time.Time, sentiment *Sentiment) error {
	if c.Status.IsTerminal() {
		return ErrCallFinalized
	}
	if !status.IsTerminal() {
		return ErrInvalidCall
	}
	c.Status = status
	if status == StatusTransferred {
		c.State = StateTransferred
	} else {
		c.State = StateEnded
	}
	c.EndTime = &end
	if !c.StartTime.IsZero() && end.After(c.StartTime) {
		c.DurationMs = end.Sub(c.StartTime).Milliseconds()
	}
	c.Sentiment = sentiment
	return nil
}

// Clone returns a copy that shares no slices or pointers with c.
func (c Call) Clone() Call {
	out := c
	out.Transcript = append(Transcript(nil), c.Transcript...)
	out.Actions = append([]string(nil), c.Actions...)
	out.ProfileSnapshot = append(json.RawMessage(nil), c.ProfileSnapshot...)
	if c.TransferReason != nil {
		r := *c.TransferReason
		out.TransferReason = &r
	}
	if c.Sentiment != nil {
		s := *c.Sentiment
		out.Sentiment = &s
	}
	if c.EndTime != nil {
		e := *c.EndTime
		out.EndTime = &e
	}
	return out
}
