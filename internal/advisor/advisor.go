// Package advisor provides optional enrichment for decision reasons.
// An advisor never changes a verdict; the engine bounds every call by the
// rule snapshot's timeout and falls back to deterministic text.
package advisor

import (
	"context"

	"notiprio/internal/domain"
)

// Advisor returns extra explanation for an already fixed decision.
type Advisor interface {
	Enrich(ctx context.Context, ev domain.NotificationEvent, reason domain.Reason) (string, error)
}

// Func adapts a plain function to Advisor.
type Func func(ctx context.Context, ev domain.NotificationEvent, reason domain.Reason) (string, error)

func (f Func) Enrich(ctx context.Context, ev domain.NotificationEvent, reason domain.Reason) (string, error) {
	return f(ctx, ev, reason)
}

// Hint is the local advisor: it tags the reason with the event type.
type Hint struct{}

func (Hint) Enrich(ctx context.Context, ev domain.NotificationEvent, _ domain.Reason) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "ai_hint:" + ev.EventType, nil
}

// Fallback texts appended when an advisor call does not succeed.
const (
	FallbackTimeout = "ai_unavailable_timeout_fallback_to_rules"
	FallbackError   = "ai_unavailable_error_fallback_to_rules"
)
