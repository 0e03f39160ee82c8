package routing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"voice-assistant/internal/company"
)

// Engine picks where an escalated call goes.
//
// Return routing decision only. No side effects (no store writes, no provider calls).
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine uses rng for weighted selection. A nil rng is seeded from the clock.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng}
}

type EscalationInput struct {
	CompanyID string
	CallID    string
	Targets   []company.EscalationTarget
}

var ErrCompanyRequired = errors.New("routing: company_id required")

// Escalate connects to a weighted pick among the targets, or hangs up when
// no target is eligible.
func (e *Engine) Escalate(ctx context.Context, in EscalationInput) (Decision, error) {
	if in.CompanyID == "" {
		return Decision{}, ErrCompanyRequired
	}
	if dest, ok := e.pickDestination(in.Targets); ok {
		return Decision{CompanyID: in.CompanyID, CallID: in.CallID, Action: ActionConnect, ConnectTo: dest, Reason: "selected"}, nil
	}
	return Decision{CompanyID: in.CompanyID, CallID: in.CallID, Action: ActionHangup, Reason: "no_escalation_target"}, nil
}

// pickDestination treats a zero weight as 1 when every target leaves it
// unset; negative weights are never eligible.
func (e *Engine) pickDestination(targets []company.EscalationTarget) (string, bool) {
	allUnset := true
	for _, t := range targets {
		if t.Weight != 0 {
			allUnset = false
			break
		}
	}

	weight := func(t company.EscalationTarget) int {
		if t.Number == "" {
			return 0
		}
		if allUnset {
			return 1
		}
		return t.Weight
	}

	var total int
	for _, t := range targets {
		if w := weight(t); w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return "", false
	}

	e.mu.Lock()
	r := e.rng.Intn(total) // 0..total-1
	e.mu.Unlock()

	var acc int
	for _, t := range targets {
		w := weight(t)
		if w <= 0 {
			continue
		}
		acc += w
		if r < acc {
			return t.Number, true
		}
	}
	return "", false
}
