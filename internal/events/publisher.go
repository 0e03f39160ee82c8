package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Sink receives published events.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

var ErrInvalidEvent = errors.New("events: invalid event")

const deliveryTimeout = 5 * time.Second

// Publisher records events and fans them out to sinks in the background.
// A nil *Publisher drops everything.
type Publisher struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time

	mu    sync.RWMutex
	sinks []Sink
	wg    sync.WaitGroup
}

func NewPublisher(repo Repository, log *slog.Logger, sinks ...Sink) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{repo: repo, log: log, clock: time.Now, sinks: sinks}
}

// Subscribe adds a sink for subsequent events.
func (p *Publisher) Subscribe(s Sink) {
	if p == nil || s == nil {
		return
	}
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Publish validates and records e, then delivers it asynchronously.
// Only validation errors are returned; storage and delivery failures are logged.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if p == nil {
		return nil
	}
	if e.CompanyID == "" || e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = p.clock().UTC()
	}

	if p.repo != nil {
		if err := p.repo.Append(ctx, e); err != nil {
			p.log.WarnContext(ctx, "event append failed", "event_type", e.Type, "call_id", e.CallID, "err", err)
		}
	}

	p.mu.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.RUnlock()

	bg := context.WithoutCancel(ctx)
	for _, s := range sinks {
		p.wg.Add(1)
		go func(s Sink) {
			defer p.wg.Done()
			dctx, cancel := context.WithTimeout(bg, deliveryTimeout)
			defer cancel()
			if err := s.Deliver(dctx, e); err != nil {
				p.log.WarnContext(dctx, "event delivery failed", "event_type", e.Type, "call_id", e.CallID, "err", err)
			}
		}(s)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (p *Publisher) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}
