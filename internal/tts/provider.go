package tts

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("voice-assistant/internal/tts")

// Voice selects how a text is rendered.
type Voice struct {
	Provider string
	VoiceID  string
	Language string
	Speed    float64
	Format   string
}

// Provider turns text into audio bytes.
type Provider interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, text string, v Voice) ([]byte, error)
}

var ErrUnavailable = errors.New("tts: provider unavailable")
