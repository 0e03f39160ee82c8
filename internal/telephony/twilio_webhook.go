package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"voice-assistant/internal/session"
)

var ErrMissingCallSid = errors.New("telephony: CallSid required")

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioVoiceForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	SpeechResult string
	Confidence   float64
	RecordingURL string
	CallDuration int
}

func ParseTwilioVoiceForm(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	f := TwilioVoiceForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   strings.TrimSpace(r.PostFormValue("CallStatus")),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		RecordingURL: strings.TrimSpace(r.PostFormValue("RecordingUrl")),
	}
	if f.CallSid == "" {
		return TwilioVoiceForm{}, ErrMissingCallSid
	}
	// Malformed numeric fields are treated as absent.
	if v, err := strconv.ParseFloat(r.PostFormValue("Confidence"), 64); err == nil {
		f.Confidence = v
	}
	if v, err := strconv.Atoi(r.PostFormValue("CallDuration")); err == nil {
		f.CallDuration = v
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// ToEvent maps the form to the session contract.
func (f TwilioVoiceForm) ToEvent(typ session.EventType) session.Event {
	return session.Event{
		CallID: f.CallSid,
		From:   f.From,
		To:     f.To,
		Type:   typ,
		Payload: session.Payload{
			SpeechText:      f.SpeechResult,
			Confidence:      f.Confidence,
			RecordingURL:    f.RecordingURL,
			CallStatus:      f.CallStatus,
			Direction:       f.Direction,
			DurationSeconds: f.CallDuration,
		},
	}
}
