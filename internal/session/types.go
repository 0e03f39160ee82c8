package session

// EventType is the kind of telephony webhook delivered to the engine.
type EventType string

const (
	EventIncoming     EventType = "incoming"
	EventSpeechResult EventType = "speech-result"
	EventStatusUpdate EventType = "status-update"
)

// Event is the provider-agnostic webhook contract.
type Event struct {
	CallID  string    `json:"call_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Type    EventType `json:"event"`
	Payload Payload   `json:"payload"`
}

type Payload struct {
	SpeechText   string  `json:"speech_text,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	RecordingURL string  `json:"recording_url,omitempty"`
	// CallStatus is the provider's raw status (completed, busy, no-answer, ...).
	CallStatus      string `json:"call_status,omitempty"`
	Direction       string `json:"direction,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// VoiceParams tells the adapter how to speak Text when no audio URL is given.
type VoiceParams struct {
	Provider string `json:"provider,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// Directive is what the telephony adapter must do next.
//
// Text (or AudioURL when set) is spoken first. With Gather set the speech is
// interruptible and the caller's answer is posted to Gather.Action. RedirectTo
// dials a human. Hangup ends the call after speaking.
type Directive struct {
	Text       string      `json:"text,omitempty"`
	Voice      VoiceParams `json:"voice"`
	AudioURL   string      `json:"audio_url,omitempty"`
	Gather     *Gather     `json:"gather,omitempty"`
	RedirectTo string      `json:"redirect_to,omitempty"`
	Hangup     bool        `json:"hangup,omitempty"`
}

type Gather struct {
	Prompt    string `json:"prompt,omitempty"`
	TimeoutMs int    `json:"timeout_ms"`
	Action    string `json:"action,omitempty"`
}

// Empty reports whether the directive asks for nothing (acknowledge only).
func (d Directive) Empty() bool {
	return d.Text == "" && d.AudioURL == "" && d.Gather == nil && d.RedirectTo == "" && !d.Hangup
}
