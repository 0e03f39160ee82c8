package calls

import (
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerCaller    Speaker = "caller"
)

// Entry is one utterance of the call.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is kept in call order. Entries are never sorted by timestamp.
type Transcript []Entry

func (t Transcript) Append(speaker Speaker, text string, now time.Time) Transcript {
	return append(t, Entry{Speaker: speaker, Text: text, Timestamp: now})
}

// CallerText joins caller utterances with single spaces, in transcript order.
func (t Transcript) CallerText() string {
	parts := make([]string, 0, len(t))
	for _, e := range t {
		if e.Speaker != SpeakerCaller {
			continue
		}
		if s := strings.TrimSpace(e.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Last returns the most recent entry spoken by speaker.
func (t Transcript) Last(speaker Speaker) (Entry, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Speaker == speaker {
			return t[i], true
		}
	}
	return Entry{}, false
}
