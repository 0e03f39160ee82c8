package stt

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("voice-assistant/internal/stt")

// Audio is one caller utterance to transcribe.
type Audio struct {
	Data   []byte
	Format string
	// Hint is any text known about the utterance (partial results, prompt context).
	Hint string
}

type Result struct {
	Text       string
	Language   string
	Confidence float64
	Source     string
}

// Provider is one transcription backend.
type Provider interface {
	Name() string
	// Available is false when the backend cannot run at all (missing model, no key).
	Available() bool
	Transcribe(ctx context.Context, a Audio) (Result, error)
}

var (
	ErrNoSpeech    = errors.New("stt: no speech recognized")
	ErrUnavailable = errors.New("stt: provider unavailable")
)
