package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-assistant/internal/calls"
	"voice-assistant/internal/company"
	"voice-assistant/internal/events"
	"voice-assistant/internal/llm"
	"voice-assistant/internal/routing"
	"voice-assistant/internal/stt"
	"voice-assistant/internal/tts"
)

type stubModel struct {
	mu            sync.Mutex
	reply         llm.Result
	transfer      bool
	scenario      string
	sentiment     llm.Sentiment
	transferCalls int
	sentimentRuns int
	requests      []llm.GenerateRequest
	onGenerate    func()
}

func (m *stubModel) Generate(_ context.Context, req llm.GenerateRequest) llm.Result {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.onGenerate
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return m.reply
}

func (m *stubModel) NeedsTransfer(context.Context, string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferCalls++
	return m.transfer
}

func (m *stubModel) AnalyzeSentiment(context.Context, string) llm.Sentiment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentimentRuns++
	return m.sentiment
}

func (m *stubModel) DetectScenario(_ context.Context, _ string, p company.ConversationProfile) (string, bool) {
	if m.scenario == "" {
		return "", false
	}
	if _, ok := p.Scenario(m.scenario); !ok {
		return "", false
	}
	return m.scenario, true
}

type stubSTT struct{ text string }

func (s stubSTT) Transcribe(context.Context, stt.Audio) stt.Result {
	return stt.Result{Text: s.text, Source: "stub"}
}

type stubRecordings struct{}

func (stubRecordings) Fetch(context.Context, string) ([]byte, string, error) {
	return []byte("RIFF"), "wav", nil
}

type stubTTS struct{}

func (stubTTS) Speak(_ context.Context, text string, v tts.Voice) tts.Speech {
	return tts.Speech{Text: text, AudioURL: "https://voice.test/audio/x.mp3", Provider: "stub", Language: v.Language}
}

// trackingStore records every transcript entry written through AppendTranscript.
type trackingStore struct {
	*calls.MemoryStore

	mu       sync.Mutex
	appended []calls.Entry
}

func (s *trackingStore) AppendTranscript(ctx context.Context, callID string, e calls.Entry) error {
	s.mu.Lock()
	s.appended = append(s.appended, e)
	s.mu.Unlock()
	return s.MemoryStore.AppendTranscript(ctx, callID, e)
}

func (s *trackingStore) appendedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.appended))
	for _, e := range s.appended {
		out = append(out, e.Text)
	}
	return out
}

type fixture struct {
	engine *Engine
	store  *trackingStore
	dir    *company.MemoryDirectory
	model  *stubModel
	events *events.MemoryRepo
	pub    *events.Publisher
}

var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func acme() company.Profile {
	return company.Profile{
		ID:        "acme",
		Name:      "Acme",
		Numbers:   []string{"+33100000000"},
		Greetings: company.Greetings{Welcome: "Bienvenue chez {{companyName}} !"},
		CustomResponses: []company.CustomResponse{
			{Keyword: "adresse", Response: "Nous sommes au 1 rue de la Paix."},
		},
		EscalationTriggers: []string{"parler à un humain"},
		EscalationTargets:  []company.EscalationTarget{{Number: "+33199999999", Weight: 1}},
		Conversation: company.ConversationProfile{
			ConversationType: "support",
			AI:               company.AISettings{ModelID: "gpt-4o-mini", Temperature: 0.3},
			Scenarios:        []company.Scenario{{Name: "booking", Prompt: "Book a slot.", Actions: []string{"book"}}},
		},
	}
}

func newFixture(t *testing.T, profiles ...company.Profile) *fixture {
	t.Helper()
	if len(profiles) == 0 {
		profiles = []company.Profile{acme()}
	}
	var mu sync.Mutex
	now := monday
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	store := &trackingStore{MemoryStore: calls.NewMemoryStore()}
	dir := company.NewMemoryDirectory(profiles...)
	model := &stubModel{
		reply:     llm.Result{Text: "Bien sûr, je m'en occupe.", Provider: "openai"},
		sentiment: llm.Sentiment{Overall: "positive", Score: 0.8},
	}
	repo := events.NewMemoryRepo()
	pub := events.NewPublisher(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	e, err := NewEngine(Deps{
		Calls:      store,
		Directory:  dir,
		Model:      model,
		STT:        stubSTT{text: "je voudrais un rendez-vous"},
		Recordings: stubRecordings{},
		TTS:        stubTTS{},
		Routing:    routing.NewEngine(rand.New(rand.NewSource(1))),
		Events:     pub,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:      clock,
	}, Options{SpeechAction: "/webhooks/twilio/speech"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &fixture{engine: e, store: store, dir: dir, model: model, events: repo, pub: pub}
}

func incoming(callID string) Event {
	return Event{CallID: callID, From: "+33600000000", To: "+33 1 00 00 00 00", Type: EventIncoming}
}

func speech(callID, text string) Event {
	return Event{CallID: callID, Type: EventSpeechResult, Payload: Payload{SpeechText: text}}
}

func status(callID, s string) Event {
	return Event{CallID: callID, Type: EventStatusUpdate, Payload: Payload{CallStatus: s}}
}

func (f *fixture) call(t *testing.T, id string) calls.Call {
	t.Helper()
	c, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get call %s: %v", id, err)
	}
	return c
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	if _, err := NewEngine(Deps{}, Options{}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}

func TestIncoming_UnknownCompanyApologizesAndPersistsNothing(t *testing.T) {
	f := newFixture(t)
	d := f.engine.Handle(context.Background(), Event{CallID: "CA1", To: "+442000000000", Type: EventIncoming})

	if !d.Hangup || d.Gather != nil {
		t.Fatalf("expected hangup without gather, got %+v", d)
	}
	if d.Text != msgApology {
		t.Fatalf("expected apology, got %q", d.Text)
	}
	if _, err := f.store.Get(context.Background(), "CA1"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestIncoming_ClosedCompanyEndsMissedWithSingleEntry(t *testing.T) {
	p := acme()
	p.Greetings.Closed = "{{companyName}} est fermé."
	p.Hours = company.BusinessHours{Days: map[string]company.DayHours{
		"monday": {Closed: true},
	}}
	f := newFixture(t, p)

	d := f.engine.HandleIncoming(context.Background(), incoming("CA2"))

	if d.Gather != nil || !d.Hangup {
		t.Fatalf("expected no gather and hangup, got %+v", d)
	}
	c := f.call(t, "CA2")
	if c.Status != calls.StatusMissed || c.State != calls.StateEnded {
		t.Fatalf("expected ended/missed, got %s/%s", c.State, c.Status)
	}
	if len(c.Transcript) != 1 || c.Transcript[0].Text != "Acme est fermé." {
		t.Fatalf("expected single closed entry, got %+v", c.Transcript)
	}
	if c.Sentiment != nil {
		t.Fatalf("expected no sentiment without caller speech")
	}
}

func TestIncoming_GreetsAndGathers(t *testing.T) {
	f := newFixture(t)
	d := f.engine.HandleIncoming(context.Background(), incoming("CA3"))

	if d.Text != "Bienvenue chez Acme !" {
		t.Fatalf("unexpected welcome %q", d.Text)
	}
	if d.Gather == nil || d.Gather.TimeoutMs != 5000 || d.Gather.Action != "/webhooks/twilio/speech" {
		t.Fatalf("expected gather, got %+v", d.Gather)
	}
	if d.AudioURL == "" {
		t.Fatalf("expected audio url from tts")
	}
	c := f.call(t, "CA3")
	if c.State != calls.StateListening || c.Status != calls.StatusInProgress || c.CompanyID != "acme" {
		t.Fatalf("unexpected call %+v", c)
	}
	f.pub.Wait()
	evs := f.events.ByCall("CA3")
	if len(evs) != 1 || evs[0].Type != events.EventCallStarted {
		t.Fatalf("expected call.started, got %+v", evs)
	}
}

func TestIncoming_DuplicateRepromptsWithoutSecondCall(t *testing.T) {
	f := newFixture(t)
	f.engine.HandleIncoming(context.Background(), incoming("CA4"))
	d := f.engine.HandleIncoming(context.Background(), incoming("CA4"))

	if d.Text != "Bienvenue chez Acme !" || d.Gather == nil {
		t.Fatalf("expected the current prompt again, got %+v", d)
	}
	if n := len(f.call(t, "CA4").Transcript); n != 1 {
		t.Fatalf("expected 1 transcript entry, got %d", n)
	}
}

func TestSpeech_ThreeEmptyResultsEndMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA5"))

	for i := 0; i < 2; i++ {
		d := f.engine.HandleSpeech(ctx, speech("CA5", "  "))
		if d.Gather == nil || d.Hangup {
			t.Fatalf("reprompt %d: expected gather, got %+v", i, d)
		}
		if got := f.call(t, "CA5").Reprompts; got != i+1 {
			t.Fatalf("expected reprompts=%d, got %d", i+1, got)
		}
	}
	d := f.engine.HandleSpeech(ctx, speech("CA5", ""))
	if !d.Hangup || d.Gather != nil {
		t.Fatalf("expected hangup on third empty result, got %+v", d)
	}
	c := f.call(t, "CA5")
	if c.Status != calls.StatusMissed || c.State != calls.StateEnded {
		t.Fatalf("expected ended/missed, got %s/%s", c.State, c.Status)
	}
}

func TestSpeech_EscalationTriggerTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA6"))

	d := f.engine.HandleSpeech(ctx, speech("CA6", "Je veux parler à un humain maintenant"))

	if d.RedirectTo != "+33199999999" {
		t.Fatalf("expected redirect to escalation target, got %+v", d)
	}
	if d.Text != msgTransfer {
		t.Fatalf("expected transfer notice, got %q", d.Text)
	}
	c := f.call(t, "CA6")
	if !c.TransferredToHuman || c.State != calls.StateTransferred {
		t.Fatalf("expected transferred state, got %+v", c)
	}
	if c.TransferReason == nil || !strings.HasPrefix(*c.TransferReason, "trigger:") {
		t.Fatalf("expected trigger reason, got %v", c.TransferReason)
	}
	if f.model.transferCalls != 0 {
		t.Fatalf("keyword trigger must not consult the classifier")
	}

	f.engine.HandleStatus(ctx, status("CA6", "completed"))
	if got := f.call(t, "CA6").Status; got != calls.StatusTransferred {
		t.Fatalf("expected transferred status, got %s", got)
	}
}

func TestSpeech_ClassifierTransferOnlyWhenEscalationAllowed(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.model.transfer = true
	f.engine.HandleIncoming(ctx, incoming("CA7"))
	d := f.engine.HandleSpeech(ctx, speech("CA7", "c'est compliqué"))
	if d.RedirectTo != "" || f.call(t, "CA7").TransferredToHuman {
		t.Fatalf("classifier must be ignored when escalation is not allowed")
	}

	p := acme()
	p.AllowHumanEscalation = true
	f = newFixture(t, p)
	f.model.transfer = true
	f.engine.HandleIncoming(ctx, incoming("CA8"))
	d = f.engine.HandleSpeech(ctx, speech("CA8", "c'est compliqué"))
	if d.RedirectTo == "" || !f.call(t, "CA8").TransferredToHuman {
		t.Fatalf("expected classifier transfer, got %+v", d)
	}
}

func TestSpeech_TransferWithoutTargetStillRecordsTransfer(t *testing.T) {
	p := acme()
	p.EscalationTargets = nil
	f := newFixture(t, p)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA9"))

	d := f.engine.HandleSpeech(ctx, speech("CA9", "parler à un humain"))
	if !d.Hangup || d.RedirectTo != "" || d.Text != msgCallback {
		t.Fatalf("expected callback notice and hangup, got %+v", d)
	}
	c := f.call(t, "CA9")
	if !c.TransferredToHuman || c.State != calls.StateTransferred {
		t.Fatalf("expected transferred call, got %+v", c)
	}
	if c.TransferReason == nil || *c.TransferReason != "trigger:parler à un humain" {
		t.Fatalf("unexpected transfer reason %v", c.TransferReason)
	}

	f.engine.HandleStatus(ctx, status("CA9", "completed"))
	if got := f.call(t, "CA9").Status; got != calls.StatusTransferred {
		t.Fatalf("expected transferred status, got %s", got)
	}
}

func TestSpeech_ProfileResolvedOncePerCall(t *testing.T) {
	p := acme()
	p.NamedConversations = map[string]company.ConversationProfile{
		"booking": {ConversationType: "sales", AI: company.AISettings{ModelID: "llama-3-70b"}},
	}
	f := newFixture(t, p)
	f.model.scenario = "booking"
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA17"))

	f.engine.HandleSpeech(ctx, speech("CA17", "premier tour"))

	changed := acme()
	changed.Name = "Acme Renamed"
	changed.Conversation.AI.ModelID = "claude-3-haiku"
	changed.Conversation.ConversationType = "faq"
	f.dir.Put(changed)

	f.engine.HandleSpeech(ctx, speech("CA17", "second tour"))

	if len(f.model.requests) != 2 {
		t.Fatalf("expected two generations, got %d", len(f.model.requests))
	}
	for i, req := range f.model.requests {
		if req.Model != "gpt-4o-mini" || req.ConversationType != "support" || req.CompanyName != "Acme" {
			t.Fatalf("turn %d used a different profile: %+v", i+1, req)
		}
		if !strings.Contains(req.Prompt, "[ACTION:book]") {
			t.Fatalf("turn %d lost the scenario", i+1)
		}
	}

	f.engine.HandleIncoming(ctx, incoming("CA18"))
	f.engine.HandleSpeech(ctx, speech("CA18", "nouvel appel"))
	if got := f.model.requests[2].Model; got != "claude-3-haiku" {
		t.Fatalf("a new call must see the updated profile, got %s", got)
	}
}

func TestSpeech_TranscriptGrowsThroughAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA19"))
	f.engine.HandleSpeech(ctx, speech("CA19", "bonjour"))
	f.engine.HandleSpeech(ctx, speech("CA19", ""))

	want := []string{"bonjour", "Bien sûr, je m'en occupe.", msgReprompt}
	got := f.store.appendedTexts()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("appended entries: want %q got %q", want, got)
	}
	c := f.call(t, "CA19")
	if len(c.Transcript) != 4 || c.Transcript[0].Text != "Bienvenue chez Acme !" || c.Transcript[3].Text != msgReprompt {
		t.Fatalf("unexpected stored transcript %+v", c.Transcript)
	}
}

func TestSpeech_CustomResponseSkipsModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA10"))

	d := f.engine.HandleSpeech(ctx, speech("CA10", "Quelle est votre adresse ?"))
	if d.Text != "Nous sommes au 1 rue de la Paix." || d.Gather == nil {
		t.Fatalf("unexpected directive %+v", d)
	}
	if len(f.model.requests) != 0 {
		t.Fatalf("custom response must not call the model")
	}
}

func TestSpeech_GeneratesReplyWithScenario(t *testing.T) {
	f := newFixture(t)
	f.model.scenario = "booking"
	f.model.reply = llm.Result{Text: "Quel jour vous arrange ?", Actions: []string{"book"}}
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA11"))

	d := f.engine.HandleSpeech(ctx, speech("CA11", "Je voudrais réserver"))

	if d.Text != "Quel jour vous arrange ?" || d.Gather == nil {
		t.Fatalf("unexpected directive %+v", d)
	}
	if len(f.model.requests) != 1 {
		t.Fatalf("expected one generation, got %d", len(f.model.requests))
	}
	req := f.model.requests[0]
	if req.Model != "gpt-4o-mini" || req.Temperature != 0.3 || req.ConversationType != "support" || req.CompanyName != "Acme" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.Prompt, "[ACTION:book]") {
		t.Fatalf("expected scenario actions in prompt")
	}
	if len(req.History) != 2 || req.History[0].Role != llm.RoleAssistant || req.History[1].Content != "Je voudrais réserver" {
		t.Fatalf("unexpected history %+v", req.History)
	}

	c := f.call(t, "CA11")
	if c.State != calls.StateListening || c.Scenario != "booking" {
		t.Fatalf("unexpected call state %+v", c)
	}
	if len(c.Actions) != 1 || c.Actions[0] != "book" {
		t.Fatalf("expected recorded actions, got %v", c.Actions)
	}
	if len(c.Transcript) != 3 || c.Transcript[2].Speaker != calls.SpeakerAssistant {
		t.Fatalf("unexpected transcript %+v", c.Transcript)
	}
}

func TestSpeech_RecordingIsTranscribedWhenTextMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA12"))

	ev := Event{CallID: "CA12", Type: EventSpeechResult, Payload: Payload{RecordingURL: "https://api.twilio.test/rec/RE1"}}
	f.engine.HandleSpeech(ctx, ev)

	c := f.call(t, "CA12")
	if c.Transcript[1].Text != "je voudrais un rendez-vous" || c.Reprompts != 0 {
		t.Fatalf("expected transcribed caller entry, got %+v", c.Transcript)
	}
}

func TestSpeech_ReplyDiscardedWhenCallEndsMidTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA13"))
	f.model.onGenerate = func() {
		f.engine.HandleStatus(ctx, status("CA13", "completed"))
	}

	d := f.engine.HandleSpeech(ctx, speech("CA13", "bonjour"))

	if !d.Hangup {
		t.Fatalf("expected hangup, got %+v", d)
	}
	c := f.call(t, "CA13")
	if c.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %s", c.Status)
	}
	if last := c.Transcript[len(c.Transcript)-1]; last.Speaker != calls.SpeakerCaller {
		t.Fatalf("late reply must not be appended, got %+v", last)
	}
}

func TestStatus_MappingAndSentimentOnce(t *testing.T) {
	cases := []struct {
		status string
		want   calls.Status
	}{
		{"busy", calls.StatusMissed},
		{"no-answer", calls.StatusMissed},
		{"failed", calls.StatusMissed},
		{"canceled", calls.StatusMissed},
		{"completed", calls.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.engine.HandleIncoming(ctx, incoming("CA"))
			f.engine.HandleSpeech(ctx, speech("CA", "merci beaucoup"))

			f.engine.HandleStatus(ctx, status("CA", tc.status))
			f.engine.HandleStatus(ctx, status("CA", tc.status))

			c := f.call(t, "CA")
			if c.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, c.Status)
			}
			if c.EndTime == nil || c.DurationMs <= 0 {
				t.Fatalf("expected end time and duration, got %+v", c)
			}
			if c.Sentiment == nil || c.Sentiment.Overall != calls.SentimentPositive {
				t.Fatalf("expected positive sentiment, got %+v", c.Sentiment)
			}
			if f.model.sentimentRuns != 1 {
				t.Fatalf("expected sentiment computed once, got %d", f.model.sentimentRuns)
			}
		})
	}
}

func TestStatus_NonTerminalAndUnknownAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA14"))

	if d := f.engine.HandleStatus(ctx, status("CA14", "ringing")); !d.Empty() {
		t.Fatalf("expected empty directive, got %+v", d)
	}
	if f.call(t, "CA14").Status != calls.StatusInProgress {
		t.Fatalf("non-terminal status must not finalize")
	}
	if d := f.engine.HandleStatus(ctx, status("nope", "completed")); !d.Empty() {
		t.Fatalf("expected empty directive for unknown call")
	}
}

func TestStatus_ProviderDurationWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA15"))

	f.engine.HandleStatus(ctx, Event{CallID: "CA15", Type: EventStatusUpdate, Payload: Payload{CallStatus: "completed", DurationSeconds: 42}})

	c := f.call(t, "CA15")
	if c.DurationMs != 42000 {
		t.Fatalf("expected provider duration, got %d", c.DurationMs)
	}
	if c.Sentiment != nil {
		t.Fatalf("no caller speech means no sentiment")
	}
}

func TestSpeech_AfterEndHangsUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.HandleIncoming(ctx, incoming("CA16"))
	f.engine.HandleStatus(ctx, status("CA16", "completed"))

	d := f.engine.HandleSpeech(ctx, speech("CA16", "allo ?"))
	if !d.Hangup || d.Text != "" {
		t.Fatalf("expected silent hangup, got %+v", d)
	}
}
