package tts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"voice-assistant/internal/audiocache"
	"voice-assistant/pkg/metrics"
)

const (
	capability = "tts"
	// BaselineProvider renders nothing; the telephony side speaks the text itself.
	BaselineProvider = "say"
)

// Speech is the rendered form of a reply.
type Speech struct {
	Text string
	// AudioURL is set when audio is stored and can be played back.
	AudioURL string
	Audio    []byte
	Provider string
	Language string
	// SayVoice is the telephony voice used when AudioURL is empty.
	SayVoice string
	Cached   bool
}

type Options struct {
	// PublicBaseURL prefixes /audio/<name> playback URLs.
	PublicBaseURL string
	Defaults      Voice
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Pipeline renders replies through cached providers, ending on the baseline.
type Pipeline struct {
	cache     *audiocache.Cache
	providers []Provider
	baseURL   string
	defaults  Voice
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewPipeline keeps providers in priority order. cache may be nil, in which
// case every reply falls back to the baseline.
func NewPipeline(cache *audiocache.Cache, opts Options, providers ...Provider) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Defaults.Format == "" {
		opts.Defaults.Format = "mp3"
	}
	return &Pipeline{
		cache:     cache,
		providers: providers,
		baseURL:   strings.TrimRight(opts.PublicBaseURL, "/"),
		defaults:  opts.Defaults,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

func (p *Pipeline) withDefaults(v Voice) Voice {
	if v.Provider == "" {
		v.Provider = p.defaults.Provider
	}
	if v.VoiceID == "" {
		v.VoiceID = p.defaults.VoiceID
	}
	if v.Language == "" {
		v.Language = p.defaults.Language
	}
	if v.Speed == 0 {
		v.Speed = p.defaults.Speed
	}
	if v.Format == "" {
		v.Format = p.defaults.Format
	}
	return v
}

// order puts the requested provider first and keeps the others in priority order.
func (p *Pipeline) order(requested string) []Provider {
	out := make([]Provider, 0, len(p.providers))
	for _, pr := range p.providers {
		if strings.EqualFold(pr.Name(), requested) {
			out = append(out, pr)
		}
	}
	for _, pr := range p.providers {
		if !strings.EqualFold(pr.Name(), requested) {
			out = append(out, pr)
		}
	}
	return out
}

// Speak never fails. When no provider can produce audio the baseline Speech
// carries only the text, voice and language.
func (p *Pipeline) Speak(ctx context.Context, text string, v Voice) Speech {
	v = p.withDefaults(v)
	base := Speech{Text: text, Provider: BaselineProvider, Language: v.Language}
	if strings.EqualFold(v.Provider, BaselineProvider) {
		base.SayVoice = v.VoiceID
	}
	if strings.TrimSpace(text) == "" || p.cache == nil || strings.EqualFold(v.Provider, BaselineProvider) {
		return base
	}

	for _, prov := range p.order(v.Provider) {
		name := prov.Name()
		if !prov.Available() {
			p.metrics.RecordProvider(capability, name, "skipped", 0)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		pv := v
		if !strings.EqualFold(name, v.Provider) {
			// A fallback provider does not know the requested voice id.
			pv.VoiceID = ""
		}
		params := audiocache.Params{Text: text, Provider: name, VoiceID: pv.VoiceID, Language: pv.Language, Speed: pv.Speed, Format: pv.Format}
		start := time.Now()
		res, err := p.cache.GetOrGenerate(ctx, params, func(gctx context.Context) ([]byte, error) {
			return prov.Synthesize(gctx, text, pv)
		})
		if err != nil {
			p.metrics.RecordProvider(capability, name, "error", time.Since(start))
			p.log.WarnContext(ctx, "tts provider failed", "provider", name, "err", err)
			continue
		}
		p.metrics.RecordProvider(capability, name, "ok", time.Since(start))

		sp := Speech{Text: text, Audio: res.Audio, Provider: name, Language: pv.Language, Cached: res.Cached}
		if res.Stored && res.Entry.Name != "" {
			sp.AudioURL = p.baseURL + "/audio/" + res.Entry.Name
		}
		return sp
	}

	p.metrics.RecordFallback(capability)
	return base
}
