package llm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"voice-assistant/pkg/metrics"
)

const capability = "llm"

// Default response-length policy, keyed by conversation type.
const (
	MaxTokensLong         = 500
	MaxTokensMedium       = 300
	MaxTokensWithHistory  = 250
	MaxTokensFirstMessage = 150
)

// MaxTokensFor returns the response-length budget for a conversation type.
func MaxTokensFor(conversationType string, hasHistory bool) int {
	switch strings.ToLower(strings.TrimSpace(conversationType)) {
	case "support", "technical", "technical_support", "product_issue", "legal", "medical", "medical_assistance", "health_guidance":
		return MaxTokensLong
	case "faq", "sales", "lead_generation", "product_demo":
		return MaxTokensMedium
	}
	if hasHistory {
		return MaxTokensWithHistory
	}
	return MaxTokensFirstMessage
}

var fallbackTemplates = []string{
	"Merci d'avoir appelé %s. Je rencontre une petite difficulté technique, pouvez-vous reformuler votre demande ?",
	"Je suis désolé, je n'ai pas bien compris. Un conseiller de %s peut vous rappeler si vous le souhaitez.",
	"Chez %s, nous faisons le maximum pour vous aider. Pouvez-vous préciser votre question ?",
	"Je note votre demande. Un membre de l'équipe %s reviendra vers vous rapidement.",
}

// GenerateRequest is one conversational turn to answer.
type GenerateRequest struct {
	// Prompt is the assembled system prompt.
	Prompt string
	// History is the rolling conversation, oldest first, ending with the caller's latest utterance.
	History          []Message
	Model            string
	Temperature      float64
	ConversationType string
	CompanyName      string
}

type Result struct {
	Text     string
	Actions  []string
	Provider string
	Model    string
	// Fallback is set whenever the answer did not come from the provider the
	// model id selected: that provider was unconfigured or failed, or every
	// provider failed and Canned is set too.
	Fallback bool
	// Canned is set when no provider answered and a templated reply was returned.
	Canned bool
}

type RouterOptions struct {
	DefaultModel string
	// Timeout bounds each provider attempt.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Router picks a provider from the model id and falls back through the rest
// in a fixed priority order.
type Router struct {
	providers    []Provider
	defaultModel string
	timeout      time.Duration
	log          *slog.Logger
	metrics      *metrics.Metrics
}

// NewRouter keeps providers in the given order; that order is the fallback priority.
func NewRouter(opts RouterOptions, providers ...Provider) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		providers:    providers,
		defaultModel: opts.DefaultModel,
		timeout:      opts.Timeout,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}
}

type attempt struct {
	provider Provider
	model    string
	primary  bool
}

// plan orders the attempts for a model id: the matching provider first with
// the requested model, then every other provider with its own default model.
func (r *Router) plan(model string) []attempt {
	model = strings.TrimSpace(model)
	if model == "" {
		model = r.defaultModel
	}
	primary, resolved := r.resolve(model)

	out := make([]attempt, 0, len(r.providers))
	if primary != nil {
		out = append(out, attempt{provider: primary, model: resolved, primary: true})
	}
	for _, p := range r.providers {
		if p == primary {
			continue
		}
		out = append(out, attempt{provider: p, model: p.DefaultModel()})
	}
	return out
}

// resolve accepts "provider/model" ids and bare model names matched by prefix.
func (r *Router) resolve(model string) (Provider, string) {
	if name, rest, ok := strings.Cut(model, "/"); ok {
		for _, p := range r.providers {
			if strings.EqualFold(p.Name(), name) {
				return p, rest
			}
		}
	}
	lower := strings.ToLower(model)
	for _, p := range r.providers {
		for _, prefix := range p.Prefixes() {
			if strings.HasPrefix(lower, strings.ToLower(prefix)) {
				return p, model
			}
		}
	}
	return nil, model
}

// Generate answers a turn. It never fails: when every provider errors, is
// unconfigured, or returns nothing usable, a canned reply naming the company
// is returned with Canned and Fallback set.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) Result {
	maxTokens := MaxTokensFor(req.ConversationType, len(req.History) > 1)
	creq := CompletionRequest{
		System:      req.Prompt,
		Messages:    req.History,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	for _, a := range r.plan(req.Model) {
		creq.Model = a.model
		raw, err := r.try(ctx, a, creq)
		if err != nil {
			continue
		}
		text, actions := PostProcess(raw)
		if text == "" {
			r.log.WarnContext(ctx, "llm answer empty after post-processing", "provider", a.provider.Name(), "model", a.model)
			continue
		}
		if !a.primary {
			r.metrics.RecordFallback(capability)
			r.log.InfoContext(ctx, "llm answered by fallback provider", "provider", a.provider.Name(), "requested", req.Model)
		}
		return Result{Text: text, Actions: actions, Provider: a.provider.Name(), Model: a.model, Fallback: !a.primary}
	}

	r.metrics.RecordFallback(capability)
	r.log.WarnContext(ctx, "all llm providers failed, using canned response")
	return Result{Text: FallbackResponse(req.CompanyName, lastUserText(req.History)), Fallback: true, Canned: true}
}

var errNoProvider = errors.New("llm: no provider available")

// Complete runs a constrained completion through the same fallback order but
// without post-processing or canned fallback. Classifiers build on it.
func (r *Router) Complete(ctx context.Context, model string, req CompletionRequest) (string, error) {
	var lastErr error = errNoProvider
	for _, a := range r.plan(model) {
		req.Model = a.model
		raw, err := r.try(ctx, a, req)
		if err != nil {
			if !errors.Is(err, ErrNotConfigured) {
				lastErr = err
			}
			continue
		}
		return raw, nil
	}
	return "", lastErr
}

func (r *Router) try(ctx context.Context, a attempt, req CompletionRequest) (string, error) {
	name := a.provider.Name()
	if !a.provider.Configured() {
		r.metrics.RecordProvider(capability, name, "skipped", 0)
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	raw, err := a.provider.Complete(actx, req)
	if err != nil {
		r.metrics.RecordProvider(capability, name, "error", time.Since(start))
		r.log.WarnContext(ctx, "llm provider failed", "provider", name, "model", a.model, "err", err)
		return "", err
	}
	r.metrics.RecordProvider(capability, name, "ok", time.Since(start))
	return raw, nil
}

// FallbackResponse picks one of the canned replies deterministically from the
// caller's text so a retried turn gets the same answer.
func FallbackResponse(companyName, callerText string) string {
	if strings.TrimSpace(companyName) == "" {
		companyName = "notre entreprise"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(callerText))
	return fmt.Sprintf(fallbackTemplates[h.Sum32()%uint32(len(fallbackTemplates))], companyName)
}

func lastUserText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}
