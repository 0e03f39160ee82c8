package telephony

import (
	"context"

	"voice-assistant/internal/session"
)

// CallHandler is the provider-agnostic call engine behind the webhooks.
//
// Rules:
// - No conversation logic in telephony adapters.
// - Adapters only translate provider payloads into session events and
//   session directives into provider markup.
type CallHandler interface {
	Handle(ctx context.Context, ev session.Event) session.Directive
}

// CallHandlerFunc adapts a function to CallHandler.
type CallHandlerFunc func(ctx context.Context, ev session.Event) session.Directive

func (f CallHandlerFunc) Handle(ctx context.Context, ev session.Event) session.Directive {
	return f(ctx, ev)
}
