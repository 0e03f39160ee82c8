package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"voice-assistant/internal/calls"
	"voice-assistant/internal/company"
	"voice-assistant/internal/events"
	"voice-assistant/internal/llm"
	"voice-assistant/internal/prompt"
	"voice-assistant/internal/routing"
	"voice-assistant/internal/stt"
	"voice-assistant/internal/tts"
	"voice-assistant/pkg/metrics"
)

// Model is the language-model surface the engine needs.
type Model interface {
	Generate(ctx context.Context, req llm.GenerateRequest) llm.Result
	NeedsTransfer(ctx context.Context, text string) bool
	AnalyzeSentiment(ctx context.Context, text string) llm.Sentiment
	DetectScenario(ctx context.Context, text string, profile company.ConversationProfile) (string, bool)
}

type Transcriber interface {
	Transcribe(ctx context.Context, a stt.Audio) stt.Result
}

type RecordingSource interface {
	Fetch(ctx context.Context, recordingURL string) ([]byte, string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string, v tts.Voice) tts.Speech
}

type Escalator interface {
	Escalate(ctx context.Context, in routing.EscalationInput) (routing.Decision, error)
}

// Deps are the collaborators of the engine. Recordings, Events and Metrics are optional.
type Deps struct {
	Calls      calls.Store
	Locker     calls.Locker
	Directory  company.Directory
	Model      Model
	STT        Transcriber
	Recordings RecordingSource
	TTS        Speaker
	Routing    Escalator
	Events     *events.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

type Options struct {
	MaxReprompts  int
	GatherTimeout time.Duration
	// SpeechAction is where the adapter posts gathered speech.
	SpeechAction string
	// HistoryTurns bounds the rolling history sent to the model.
	HistoryTurns int
	// Language is used when a company has no voice language.
	Language string
}

// Engine drives one call from the first webhook to finalization.
type Engine struct {
	calls      calls.Store
	locker     calls.Locker
	dir        company.Directory
	model      Model
	stt        Transcriber
	recordings RecordingSource
	tts        Speaker
	routing    Escalator
	events     *events.Publisher
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
	opts       Options
}

var ErrMissingDependency = errors.New("session: missing dependency")

func NewEngine(d Deps, opts Options) (*Engine, error) {
	switch {
	case d.Calls == nil:
		return nil, fmt.Errorf("%w: calls store", ErrMissingDependency)
	case d.Directory == nil:
		return nil, fmt.Errorf("%w: company directory", ErrMissingDependency)
	case d.Model == nil:
		return nil, fmt.Errorf("%w: model", ErrMissingDependency)
	case d.STT == nil:
		return nil, fmt.Errorf("%w: stt", ErrMissingDependency)
	case d.TTS == nil:
		return nil, fmt.Errorf("%w: tts", ErrMissingDependency)
	case d.Routing == nil:
		return nil, fmt.Errorf("%w: routing", ErrMissingDependency)
	}
	if d.Locker == nil {
		d.Locker = calls.NewKeyedMutex()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if opts.MaxReprompts <= 0 {
		opts.MaxReprompts = 3
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = 5 * time.Second
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 10
	}
	if opts.Language == "" {
		opts.Language = "fr-FR"
	}
	return &Engine{
		calls:      d.Calls,
		locker:     d.Locker,
		dir:        d.Directory,
		model:      d.Model,
		stt:        d.STT,
		recordings: d.Recordings,
		tts:        d.TTS,
		routing:    d.Routing,
		events:     d.Events,
		metrics:    d.Metrics,
		log:        d.Logger,
		now:        d.Clock,
		opts:       opts,
	}, nil
}

// Handle dispatches a webhook event. It never fails: every error path ends in
// a spoken directive.
func (e *Engine) Handle(ctx context.Context, ev Event) Directive {
	switch ev.Type {
	case EventIncoming:
		return e.HandleIncoming(ctx, ev)
	case EventSpeechResult:
		return e.HandleSpeech(ctx, ev)
	case EventStatusUpdate:
		return e.HandleStatus(ctx, ev)
	default:
		e.log.WarnContext(ctx, "unknown session event", "event", ev.Type, "call_id", ev.CallID)
		return e.apology()
	}
}

// HandleIncoming answers a new call: unknown company, closed company, or greeting.
func (e *Engine) HandleIncoming(ctx context.Context, ev Event) Directive {
	log := e.log.With("call_id", ev.CallID)
	if ev.CallID == "" {
		return e.apology()
	}

	profile, err := e.dir.ResolveByNumber(ctx, ev.To)
	if err != nil {
		log.WarnContext(ctx, "company resolution failed", "to", ev.To, "err", err)
		return e.apology()
	}
	profile = e.withConversation(ctx, profile)

	unlock, err := e.locker.Lock(ctx, ev.CallID)
	if err != nil {
		log.WarnContext(ctx, "call lock failed", "err", err)
		return e.apology()
	}
	defer unlock()

	if existing, err := e.calls.Get(ctx, ev.CallID); err == nil {
		return e.resume(ctx, existing)
	} else if !errors.Is(err, calls.ErrNotFound) {
		log.ErrorContext(ctx, "call lookup failed", "err", err)
		return e.apology()
	}

	snapshot, err := json.Marshal(profile)
	if err != nil {
		log.ErrorContext(ctx, "profile snapshot failed", "company_id", profile.ID, "err", err)
		return e.apology()
	}

	now := e.now()
	c := calls.Call{
		CallID:          ev.CallID,
		CompanyID:       profile.ID,
		From:            ev.From,
		To:              ev.To,
		Direction:       direction(ev.Payload.Direction),
		Status:          calls.StatusInProgress,
		State:           calls.StateGreeting,
		StartTime:       now,
		ProfileSnapshot: snapshot,
	}

	if !company.IsOpenAt(profile, now) {
		msg := greeting(profile, profile.Greetings.Closed, msgClosed)
		c.Transcript = c.Transcript.Append(calls.SpeakerAssistant, msg, now)
		if err := c.Finalize(calls.StatusMissed, now, nil); err != nil {
			log.ErrorContext(ctx, "closed call finalize rejected", "err", err)
		}
		if err := e.calls.Create(ctx, c); err != nil {
			log.ErrorContext(ctx, "closed call persist failed", "err", err)
		}
		e.metrics.RecordCallEnded(string(calls.StatusMissed))
		e.publish(ctx, c, events.EventCallEnded, "company closed")
		d := e.speak(ctx, msg, profile)
		d.Hangup = true
		return d
	}

	welcome := greeting(profile, profile.Greetings.Welcome, msgWelcome)
	c.Transcript = c.Transcript.Append(calls.SpeakerAssistant, welcome, now)
	c.State = calls.StateListening
	if err := e.calls.Create(ctx, c); err != nil {
		if errors.Is(err, calls.ErrAlreadyExists) {
			if existing, gerr := e.calls.Get(ctx, ev.CallID); gerr == nil {
				return e.resume(ctx, existing)
			}
		}
		log.ErrorContext(ctx, "call persist failed", "err", err)
		return e.apology()
	}
	e.publish(ctx, c, events.EventCallStarted, "")
	log.InfoContext(ctx, "call started", "company_id", c.CompanyID)

	return e.listen(e.speak(ctx, welcome, profile))
}

// resume answers a duplicate incoming webhook with the last prompt.
func (e *Engine) resume(ctx context.Context, c calls.Call) Directive {
	if c.Status.IsTerminal() {
		return Directive{Hangup: true}
	}
	profile, err := e.callProfile(ctx, c)
	if err != nil {
		e.log.WarnContext(ctx, "company lookup failed", "call_id", c.CallID, "err", err)
		return e.apology()
	}
	text := greeting(profile, profile.Greetings.Reprompt, msgReprompt)
	if last, ok := c.Transcript.Last(calls.SpeakerAssistant); ok {
		text = last.Text
	}
	return e.listen(e.speak(ctx, text, profile))
}

type turn struct {
	reply      string
	actions    []string
	scenario   string
	transfer   bool
	reason     string
	redirectTo string
	hangup     bool
	outcome    string
}

// HandleSpeech runs one conversational turn. The call is locked while it is
// read and written; model, STT and TTS work runs unlocked and its result is
// dropped if the call ended meanwhile.
func (e *Engine) HandleSpeech(ctx context.Context, ev Event) Directive {
	log := e.log.With("call_id", ev.CallID)

	c, err := e.calls.Get(ctx, ev.CallID)
	if err != nil {
		log.WarnContext(ctx, "speech for unknown call", "err", err)
		return e.apology()
	}
	if c.Status.IsTerminal() {
		return Directive{Hangup: true}
	}
	profile, err := e.callProfile(ctx, c)
	if err != nil {
		log.WarnContext(ctx, "company lookup failed", "company_id", c.CompanyID, "err", err)
		return e.apology()
	}

	text := strings.TrimSpace(ev.Payload.SpeechText)
	if text == "" && ev.Payload.RecordingURL != "" {
		text = e.transcribeRecording(ctx, ev.Payload.RecordingURL, profile)
	}

	if text == "" {
		return e.reprompt(ctx, ev.CallID, profile)
	}

	history, err := e.recordCaller(ctx, ev.CallID, text)
	if err != nil {
		if errors.Is(err, calls.ErrCallFinalized) {
			return Directive{Hangup: true}
		}
		log.ErrorContext(ctx, "caller entry persist failed", "err", err)
		return e.apology()
	}

	t := e.decide(ctx, c, profile, text, history)

	d := e.speak(ctx, t.reply, profile)

	unlock, err := e.locker.Lock(ctx, ev.CallID)
	if err != nil {
		log.WarnContext(ctx, "call lock failed", "err", err)
		return e.apology()
	}
	defer unlock()

	cur, err := e.calls.Get(ctx, ev.CallID)
	if err != nil {
		log.ErrorContext(ctx, "call reload failed", "err", err)
		return e.apology()
	}
	if cur.Status.IsTerminal() {
		log.InfoContext(ctx, "call ended during turn, reply discarded")
		return Directive{Hangup: true}
	}

	if err := e.appendEntry(ctx, &cur, calls.SpeakerAssistant, t.reply); err != nil {
		if errors.Is(err, calls.ErrCallFinalized) {
			return Directive{Hangup: true}
		}
		log.ErrorContext(ctx, "reply entry persist failed", "err", err)
	}
	cur.Actions = append(cur.Actions, t.actions...)
	if t.scenario != "" {
		cur.Scenario = t.scenario
	}
	switch {
	case t.transfer:
		cur.TransferredToHuman = true
		reason := t.reason
		cur.TransferReason = &reason
		cur.State = calls.StateTransferred
	case t.hangup:
		cur.State = calls.StateResponding
	default:
		cur.State = calls.StateListening
	}
	if err := e.calls.Save(ctx, cur); err != nil {
		log.ErrorContext(ctx, "turn persist failed", "err", err)
	}
	e.metrics.RecordTurn(t.outcome)
	if t.transfer {
		e.publish(ctx, cur, events.EventCallTransferred, t.reason)
	}

	switch {
	case t.redirectTo != "":
		d.RedirectTo = t.redirectTo
		return d
	case t.hangup:
		d.Hangup = true
		return d
	default:
		return e.listen(d)
	}
}

// recordCaller appends the caller entry, resets the re-prompt counter and
// returns the transcript the model should see.
func (e *Engine) recordCaller(ctx context.Context, callID, text string) (calls.Transcript, error) {
	unlock, err := e.locker.Lock(ctx, callID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.calls.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, calls.ErrCallFinalized
	}
	if err := e.appendEntry(ctx, &c, calls.SpeakerCaller, text); err != nil {
		return nil, err
	}
	c.Reprompts = 0
	c.State = calls.StateProcessing
	if err := e.calls.Save(ctx, c); err != nil {
		return nil, err
	}
	return c.Transcript, nil
}

func (e *Engine) reprompt(ctx context.Context, callID string, profile company.Profile) Directive {
	log := e.log.With("call_id", callID)
	unlock, err := e.locker.Lock(ctx, callID)
	if err != nil {
		log.WarnContext(ctx, "call lock failed", "err", err)
		return e.apology()
	}
	defer unlock()

	c, err := e.calls.Get(ctx, callID)
	if err != nil {
		log.ErrorContext(ctx, "call reload failed", "err", err)
		return e.apology()
	}
	if c.Status.IsTerminal() {
		return Directive{Hangup: true}
	}

	c.Reprompts++
	if c.Reprompts >= e.opts.MaxReprompts {
		msg := greeting(profile, profile.Greetings.Goodbye, msgGoodbye)
		if err := e.appendEntry(ctx, &c, calls.SpeakerAssistant, msg); err != nil {
			log.ErrorContext(ctx, "goodbye entry persist failed", "err", err)
		}
		e.finalize(ctx, &c, calls.StatusMissed, e.now(), 0)
		e.metrics.RecordTurn("no_input_hangup")
		d := e.speak(ctx, msg, profile)
		d.Hangup = true
		return d
	}

	msg := greeting(profile, profile.Greetings.Reprompt, msgReprompt)
	if err := e.appendEntry(ctx, &c, calls.SpeakerAssistant, msg); err != nil {
		log.ErrorContext(ctx, "reprompt entry persist failed", "err", err)
	}
	c.State = calls.StateListening
	if err := e.calls.Save(ctx, c); err != nil {
		log.ErrorContext(ctx, "reprompt persist failed", "err", err)
	}
	e.metrics.RecordTurn("reprompt")
	return e.listen(e.speak(ctx, msg, profile))
}

func (e *Engine) transcribeRecording(ctx context.Context, recordingURL string, profile company.Profile) string {
	if e.recordings == nil {
		return ""
	}
	data, format, err := e.recordings.Fetch(ctx, recordingURL)
	if err != nil {
		e.log.WarnContext(ctx, "recording fetch failed", "err", err)
		return ""
	}
	res := e.stt.Transcribe(ctx, stt.Audio{Data: data, Format: format, Hint: profile.Conversation.ConversationType})
	return strings.TrimSpace(res.Text)
}

// decide applies, in order: escalation keywords, the transfer classifier,
// custom keyword responses, scenario detection and generation.
func (e *Engine) decide(ctx context.Context, c calls.Call, profile company.Profile, text string, history calls.Transcript) turn {
	if kw, ok := profile.MatchesEscalationTrigger(text); ok {
		return e.escalate(ctx, c, profile, "trigger:"+kw)
	}

	conv := profile.Conversation

	var (
		needsTransfer bool
		scenarioName  string
		hasScenario   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if profile.AllowHumanEscalation {
		g.Go(func() error {
			needsTransfer = e.model.NeedsTransfer(gctx, text)
			return nil
		})
	}
	g.Go(func() error {
		scenarioName, hasScenario = e.model.DetectScenario(gctx, text, conv)
		return nil
	})
	_ = g.Wait()

	if needsTransfer {
		return e.escalate(ctx, c, profile, "classifier")
	}

	if resp, ok := profile.FindCustomResponse(text); ok {
		return turn{reply: greeting(profile, resp, resp), outcome: "custom_response"}
	}

	in := prompt.Input{Company: profile, Profile: conv}
	if hasScenario {
		if s, ok := conv.Scenario(scenarioName); ok {
			in.Scenario = &s
		}
	}

	temp := in.Profile.AI.Temperature
	if temp <= 0 {
		temp = 0.7
	}
	res := e.model.Generate(ctx, llm.GenerateRequest{
		Prompt:           prompt.Assemble(in),
		History:          e.history(history),
		Model:            in.Profile.AI.ModelID,
		Temperature:      temp,
		ConversationType: in.Profile.ConversationType,
		CompanyName:      profile.Name,
	})

	outcome := "reply"
	switch {
	case res.Canned:
		outcome = "canned"
	case res.Fallback:
		outcome = "fallback"
	}
	return turn{reply: res.Text, actions: res.Actions, scenario: scenarioName, outcome: outcome}
}

// escalate always records the transfer. Without a reachable target the
// caller is promised a callback and the call hangs up instead of dialing.
func (e *Engine) escalate(ctx context.Context, c calls.Call, profile company.Profile, reason string) turn {
	t := turn{transfer: true, reason: reason}
	d, err := e.routing.Escalate(ctx, routing.EscalationInput{
		CompanyID: c.CompanyID,
		CallID:    c.CallID,
		Targets:   profile.EscalationTargets,
	})
	if err != nil {
		e.log.WarnContext(ctx, "escalation routing failed", "call_id", c.CallID, "err", err)
	}
	if err != nil || d.Action != routing.ActionConnect || d.ConnectTo == "" {
		t.reply, t.hangup, t.outcome = msgCallback, true, "transfer_callback"
		return t
	}
	t.reply = greeting(profile, profile.Greetings.Transfer, msgTransfer)
	t.redirectTo = d.ConnectTo
	t.outcome = "transfer"
	return t
}

// appendEntry writes one transcript entry through the store and mirrors it on c.
// The caller must hold the call lock.
func (e *Engine) appendEntry(ctx context.Context, c *calls.Call, speaker calls.Speaker, text string) error {
	entry := calls.Entry{Speaker: speaker, Text: text, Timestamp: e.now()}
	if err := e.calls.AppendTranscript(ctx, c.CallID, entry); err != nil {
		return err
	}
	c.Transcript = append(c.Transcript, entry)
	return nil
}

// withConversation resolves the default conversation profile once, when the
// call is answered. Later turns only pick scenarios from it.
func (e *Engine) withConversation(ctx context.Context, p company.Profile) company.Profile {
	conv, err := e.dir.LoadProfile(ctx, p.ID, "")
	if err != nil {
		e.log.WarnContext(ctx, "conversation profile unavailable", "company_id", p.ID, "err", err)
	} else {
		p.Conversation = conv
	}
	p.NamedConversations = nil
	return p
}

// callProfile returns the configuration the call was answered with. Calls
// stored without a usable snapshot fall back to the directory.
func (e *Engine) callProfile(ctx context.Context, c calls.Call) (company.Profile, error) {
	if len(c.ProfileSnapshot) > 0 {
		var p company.Profile
		err := json.Unmarshal(c.ProfileSnapshot, &p)
		if err == nil {
			return p, nil
		}
		e.log.WarnContext(ctx, "profile snapshot unreadable", "call_id", c.CallID, "err", err)
	}
	p, err := e.dir.Get(ctx, c.CompanyID)
	if err != nil {
		return company.Profile{}, err
	}
	return e.withConversation(ctx, p), nil
}

// history maps the tail of the transcript to model messages.
func (e *Engine) history(t calls.Transcript) []llm.Message {
	if n := e.opts.HistoryTurns; len(t) > n {
		t = t[len(t)-n:]
	}
	out := make([]llm.Message, 0, len(t))
	for _, entry := range t {
		role := llm.RoleAssistant
		if entry.Speaker == calls.SpeakerCaller {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: entry.Text})
	}
	return out
}

// HandleStatus finalizes the call on terminal provider statuses. Repeated
// events for a finalized call are ignored.
func (e *Engine) HandleStatus(ctx context.Context, ev Event) Directive {
	log := e.log.With("call_id", ev.CallID)

	unlock, err := e.locker.Lock(ctx, ev.CallID)
	if err != nil {
		log.WarnContext(ctx, "call lock failed", "err", err)
		return Directive{}
	}
	defer unlock()

	c, err := e.calls.Get(ctx, ev.CallID)
	if err != nil {
		if !errors.Is(err, calls.ErrNotFound) {
			log.ErrorContext(ctx, "call lookup failed", "err", err)
		}
		return Directive{}
	}
	if c.Status.IsTerminal() {
		return Directive{}
	}

	status, ok := terminalStatus(ev.Payload.CallStatus, c.TransferredToHuman)
	if !ok {
		return Directive{}
	}
	e.finalize(ctx, &c, status, e.now(), ev.Payload.DurationSeconds)
	return Directive{}
}

// finalize computes sentiment once, freezes the call and announces it.
// The caller must hold the call lock.
func (e *Engine) finalize(ctx context.Context, c *calls.Call, status calls.Status, end time.Time, durationSeconds int) {
	var sentiment *calls.Sentiment
	if text := c.Transcript.CallerText(); text != "" {
		s := e.model.AnalyzeSentiment(ctx, text)
		sentiment = &calls.Sentiment{Overall: calls.Overall(s.Overall), Score: s.Score}
	}
	if err := c.Finalize(status, end, sentiment); err != nil {
		e.log.WarnContext(ctx, "call finalize rejected", "call_id", c.CallID, "err", err)
		return
	}
	if durationSeconds > 0 {
		c.DurationMs = int64(durationSeconds) * 1000
	}
	if err := e.calls.Save(ctx, *c); err != nil {
		e.log.ErrorContext(ctx, "call finalize persist failed", "call_id", c.CallID, "err", err)
		return
	}
	e.metrics.RecordCallEnded(string(status))
	e.publish(ctx, *c, events.EventCallEnded, "")
	e.log.InfoContext(ctx, "call ended", "call_id", c.CallID, "status", status, "duration_ms", c.DurationMs)
}

func terminalStatus(providerStatus string, transferred bool) (calls.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "busy", "no-answer", "failed", "canceled", "cancelled":
		return calls.StatusMissed, true
	case "completed":
		if transferred {
			return calls.StatusTransferred, true
		}
		return calls.StatusCompleted, true
	default:
		return "", false
	}
}

func direction(s string) calls.Direction {
	if strings.HasPrefix(strings.ToLower(s), "outbound") {
		return calls.DirectionOutbound
	}
	return calls.DirectionInbound
}

func (e *Engine) voice(p company.Profile) tts.Voice {
	lang := p.Voice.Language
	if lang == "" {
		lang = e.opts.Language
	}
	return tts.Voice{Provider: p.Voice.Provider, VoiceID: p.Voice.VoiceID, Language: lang, Speed: p.Voice.Speed}
}

func (e *Engine) speak(ctx context.Context, text string, p company.Profile) Directive {
	sp := e.tts.Speak(ctx, text, e.voice(p))
	return Directive{
		Text:     text,
		AudioURL: sp.AudioURL,
		Voice:    VoiceParams{Provider: sp.Provider, Voice: sp.SayVoice, Language: sp.Language},
	}
}

func (e *Engine) listen(d Directive) Directive {
	d.Gather = &Gather{
		TimeoutMs: int(e.opts.GatherTimeout / time.Millisecond),
		Action:    e.opts.SpeechAction,
	}
	return d
}

func (e *Engine) apology() Directive {
	return Directive{
		Text:   msgApology,
		Voice:  VoiceParams{Provider: tts.BaselineProvider, Language: e.opts.Language},
		Hangup: true,
	}
}

func (e *Engine) publish(ctx context.Context, c calls.Call, typ events.EventType, message string) {
	err := e.events.Publish(ctx, events.Event{
		CompanyID: c.CompanyID,
		CallID:    c.CallID,
		Type:      typ,
		Status:    string(c.Status),
		Message:   message,
	})
	if err != nil {
		e.log.WarnContext(ctx, "event publish failed", "call_id", c.CallID, "err", err)
	}
}
