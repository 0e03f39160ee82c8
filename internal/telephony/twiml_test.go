package telephony

import (
	"strings"
	"testing"

	"voice-assistant/internal/session"
)

const speechAction = "https://voice.example.com/webhooks/twilio/speech"

func TestRenderTwiMLGatherNestsSpeechAndRedirects(t *testing.T) {
	xml, err := RenderTwiML(session.Directive{
		Text:   "Bonjour",
		Voice:  session.VoiceParams{Provider: "say", Language: "fr-FR"},
		Gather: &session.Gather{TimeoutMs: 5000, Action: speechAction},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Gather input="speech" action="` + speechAction + `" method="POST" timeout="5" speechTimeout="auto" language="fr-FR">`,
		`<Say language="fr-FR">Bonjour</Say>`,
		`<Redirect method="POST">` + speechAction + `</Redirect>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if strings.Index(xml, "<Say") < strings.Index(xml, "<Gather") || strings.Index(xml, "<Redirect") < strings.Index(xml, "</Gather>") {
		t.Fatalf("unexpected verb order: %s", xml)
	}
}

func TestRenderTwiMLPlaysAudioWhenAvailable(t *testing.T) {
	xml, err := RenderTwiML(session.Directive{
		Text:     "Bonjour",
		AudioURL: "https://voice.example.com/audio/abc.mp3",
		Hangup:   true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Play>https://voice.example.com/audio/abc.mp3</Play>") {
		t.Fatalf("expected play: %s", xml)
	}
	if strings.Contains(xml, "<Say") {
		t.Fatalf("say must not be rendered when audio exists: %s", xml)
	}
	if !strings.Contains(xml, "<Hangup></Hangup>") {
		t.Fatalf("expected hangup: %s", xml)
	}
}

func TestRenderTwiMLDialsTransferTarget(t *testing.T) {
	xml, err := RenderTwiML(session.Directive{Text: "Je vous transfère", RedirectTo: "+33199999999"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Dial>") || !strings.Contains(xml, "<Number>+33199999999</Number>") {
		t.Fatalf("expected dial: %s", xml)
	}
	if strings.Index(xml, "<Say") > strings.Index(xml, "<Dial>") {
		t.Fatalf("transfer notice must precede dial: %s", xml)
	}

	xml, err = RenderTwiML(session.Directive{RedirectTo: "sip:agent@pbx.example.com"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Sip>sip:agent@pbx.example.com</Sip>") {
		t.Fatalf("expected sip dial: %s", xml)
	}
}

func TestRenderTwiMLEscapesText(t *testing.T) {
	xml, err := RenderTwiML(session.Directive{Text: "Tom & Jerry <SARL>", Hangup: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "Tom &amp; Jerry &lt;SARL&gt;") {
		t.Fatalf("expected escaped text: %s", xml)
	}
}

func TestRenderTwiMLEmptyDirective(t *testing.T) {
	xml, err := RenderTwiML(session.Directive{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Response></Response>") {
		t.Fatalf("expected empty response: %s", xml)
	}
}

func TestRenderTwiMLGatherRequiresAction(t *testing.T) {
	_, err := RenderTwiML(session.Directive{Text: "x", Gather: &session.Gather{TimeoutMs: 5000}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
