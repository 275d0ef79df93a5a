package advisor

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"notiprio/internal/domain"
)

// Limited caps the call rate of an inner advisor. Calls over budget fail
// immediately so the engine falls back without waiting.
type Limited struct {
	inner Advisor
	lim   *rate.Limiter
}

// NewLimited allows perSecond calls with the given burst. A non-positive
// rate disables limiting.
func NewLimited(inner Advisor, perSecond float64, burst int) *Limited {
	l := &Limited{inner: inner}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

func (l *Limited) Enrich(ctx context.Context, ev domain.NotificationEvent, reason domain.Reason) (string, error) {
	if l.lim != nil && !l.lim.Allow() {
		return "", fmt.Errorf("advisor rate limited: %w", domain.ErrAdvisorFailed)
	}
	return l.inner.Enrich(ctx, ev, reason)
}
