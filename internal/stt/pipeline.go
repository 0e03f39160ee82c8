package stt

import (
	"context"
	"log/slog"
	"time"

	"voice-assistant/pkg/metrics"
)

const capability = "stt"

type Options struct {
	// Language is reported when a provider does not detect one.
	Language string
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Pipeline tries each provider in order and ends on the heuristic.
type Pipeline struct {
	providers []Provider
	last      Heuristic
	language  string
	timeout   time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewPipeline(opts Options, providers ...Provider) *Pipeline {
	if opts.Language == "" {
		opts.Language = "fr"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		providers: providers,
		last:      Heuristic{Language: opts.Language},
		language:  opts.Language,
		timeout:   opts.Timeout,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Transcribe never fails and never returns empty text.
func (p *Pipeline) Transcribe(ctx context.Context, a Audio) Result {
	providers := p.providers
	if len(a.Data) == 0 {
		providers = nil
	}
	for _, prov := range providers {
		name := prov.Name()
		if !prov.Available() {
			p.metrics.RecordProvider(capability, name, "skipped", 0)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		sctx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		res, err := prov.Transcribe(sctx, a)
		cancel()
		if err != nil {
			p.metrics.RecordProvider(capability, name, "error", time.Since(start))
			p.log.WarnContext(ctx, "stt provider failed", "provider", name, "err", err)
			continue
		}
		p.metrics.RecordProvider(capability, name, "ok", time.Since(start))
		if res.Language == "" {
			res.Language = p.language
		}
		if res.Source == "" {
			res.Source = name
		}
		return res
	}

	p.metrics.RecordFallback(capability)
	res, _ := p.last.Transcribe(ctx, a)
	return res
}
