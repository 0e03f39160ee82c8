package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"voice-assistant/internal/session"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Verbs         []any    `xml:",any"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

var errGatherAction = errors.New("telephony: gather action required")

// RenderTwiML maps a session directive to TwiML.
//
// A gathering directive speaks inside <Gather> so the caller can barge in, and
// is followed by a <Redirect> to the same action: when Twilio hears nothing the
// engine receives an empty speech result and re-prompts.
func RenderTwiML(d session.Directive) (string, error) {
	var r twimlResponse

	speech := speechVerb(d)

	switch {
	case d.Gather != nil:
		if strings.TrimSpace(d.Gather.Action) == "" {
			return "", errGatherAction
		}
		g := twimlGather{
			Input:         "speech",
			Action:        d.Gather.Action,
			Method:        "POST",
			Timeout:       gatherSeconds(d.Gather.TimeoutMs),
			SpeechTimeout: "auto",
			Language:      d.Voice.Language,
		}
		if speech != nil {
			g.Verbs = append(g.Verbs, speech)
		}
		r.Verbs = append(r.Verbs, g, twimlRedirect{Method: "POST", URL: d.Gather.Action})
	case strings.TrimSpace(d.RedirectTo) != "":
		if speech != nil {
			r.Verbs = append(r.Verbs, speech)
		}
		dial := twimlDial{}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(d.RedirectTo), "sip:") {
			dial.Sip = &twimlSip{URI: d.RedirectTo}
		} else {
			dial.Number = d.RedirectTo
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		if speech != nil {
			r.Verbs = append(r.Verbs, speech)
		}
		if d.Hangup {
			r.Verbs = append(r.Verbs, twimlHangup{})
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func speechVerb(d session.Directive) any {
	if d.AudioURL != "" {
		return twimlPlay{URL: d.AudioURL}
	}
	text := d.Text
	if d.Gather != nil && text == "" {
		text = d.Gather.Prompt
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return twimlSay{Voice: d.Voice.Voice, Language: d.Voice.Language, Text: text}
}

func gatherSeconds(ms int) int {
	if ms <= 0 {
		return 5
	}
	return (ms + 999) / 1000
}
