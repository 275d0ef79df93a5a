package engine

import (
	"context"
	"errors"
	"fmt"

	"notiprio/internal/advisor"
	"notiprio/internal/domain"
	"notiprio/internal/metrics"
	"notiprio/internal/rules"
	logx "notiprio/pkg/logx"
)

type adviceResult struct {
	text string
	err  error
}

// enrich asks the advisor for extra reason text, bounded by the snapshot's
// timeout. The verdict is already fixed; only resp.Reason.Text and
// resp.AIEnriched change. It reports whether the fallback text was used.
func (e *Engine) enrich(ctx context.Context, cfg *rules.Config, ev domain.NotificationEvent, resp *domain.DecisionResponse) (bool, metrics.AIOutcome) {
	if e.advisor == nil || cfg.AITimeout <= 0 {
		return false, metrics.AIOK
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.AITimeout)
	defer cancel()

	// Buffered so a late advisor never blocks; its result is discarded.
	done := make(chan adviceResult, 1)
	reason := resp.Reason
	go func(a advisor.Advisor) {
		defer func() {
			if r := recover(); r != nil {
				done <- adviceResult{err: fmt.Errorf("advisor panic: %v: %w", r, domain.ErrAdvisorFailed)}
			}
		}()
		text, err := a.Enrich(cctx, ev, reason)
		done <- adviceResult{text: text, err: err}
	}(e.advisor)

	var res adviceResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res = adviceResult{err: domain.ErrAdvisorTimeout}
	}

	switch {
	case res.err == nil:
		if res.text != "" {
			resp.Reason.Text += ";" + res.text
			resp.AIEnriched = true
		}
		return false, metrics.AIOK
	case errors.Is(res.err, domain.ErrAdvisorTimeout) || errors.Is(res.err, context.DeadlineExceeded):
		resp.Reason.Text += ";" + advisor.FallbackTimeout
		e.log.Debug("advisor timed out", logx.String("event_id", ev.ID), logx.Duration("timeout", cfg.AITimeout))
		return true, metrics.AITimeout
	default:
		resp.Reason.Text += ";" + advisor.FallbackError
		e.log.Debug("advisor failed", logx.String("event_id", ev.ID), logx.Err(res.err))
		return true, metrics.AIError
	}
}
