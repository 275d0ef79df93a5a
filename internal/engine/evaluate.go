package engine

import (
	"fmt"
	"strings"
	"time"

	"notiprio/internal/dedupe"
	"notiprio/internal/domain"
	"notiprio/internal/fatigue"
	"notiprio/internal/rules"
	"notiprio/internal/state"
)

const (
	riskNearDuplicate = 0.5
	riskHourlyCap     = 0.3
	riskCooldown      = 0.2
)

// deferral is a fired check that yields Later unless an urgent event
// bypasses it.
type deferral struct {
	rule string
	code domain.ReasonCode
	text string
	risk float64
}

// evaluate runs the checks in precedence order. The first four are final;
// the deferral checks may be bypassed for urgent events.
func evaluate(cfg *rules.Config, ev domain.NotificationEvent, tx state.UserTx, fp string, tokens []string, now time.Time) domain.DecisionResponse {
	resp := domain.DecisionResponse{
		DecidedAt:     now,
		PolicyVersion: cfg.PolicyVersion,
	}
	never := func(rule string, code domain.ReasonCode, text string) domain.DecisionResponse {
		resp.Verdict = domain.VerdictNever
		resp.Reason = domain.Reason{Code: code, Text: text}
		resp.MatchedRuleIDs = []string{rule}
		return resp
	}

	if ev.ExpiresAt != nil {
		ref := now
		if ev.CreatedAt.After(ref) {
			ref = ev.CreatedAt
		}
		if ev.ExpiresAt.Before(ref) {
			return never(domain.RuleExpiry, domain.ReasonExpired, "event expired before delivery")
		}
	}
	if cfg.IsSuppressed(ev.EventType) {
		return never(domain.RuleSuppressList, domain.ReasonSuppressedType,
			fmt.Sprintf("event type %q is suppressed", ev.EventType))
	}
	if dedupe.IsExactDuplicate(tx, fp, cfg.DedupeWindow, now) {
		return never(domain.RuleExactDedupe, domain.ReasonExactDuplicate,
			"exact duplicate within the dedupe window")
	}
	if cfg.IsPromotional(ev.EventType) && fatigue.PromoCapReached(tx.DailyPromoCount(now), cfg.PromoDailyCap) {
		return never(domain.RulePromoDailyCap, domain.ReasonPromoCap,
			fmt.Sprintf("promotional daily cap of %d reached", cfg.PromoDailyCap))
	}

	var fired []deferral
	if m, ok := dedupe.FindNearDuplicate(tx.RecentProfiles(ev.EventType, cfg.DedupeWindow, now), tokens, cfg.NearDuplicateThreshold); ok {
		fired = append(fired, deferral{
			rule: domain.RuleNearDedupe,
			code: domain.ReasonNearDuplicate,
			text: fmt.Sprintf("near duplicate of %s (similarity %.2f)", m.EventID, m.Similarity),
			risk: riskNearDuplicate,
		})
	}
	if fatigue.HourlyCapReached(tx.HourlyCount(now), cfg.HourlyCap) {
		fired = append(fired, deferral{
			rule: domain.RuleHourlyCap,
			code: domain.ReasonHourlyCap,
			text: fmt.Sprintf("hourly cap of %d reached", cfg.HourlyCap),
			risk: riskHourlyCap,
		})
	}
	last, ok := tx.ChannelLastSent(ev.Channel)
	if fatigue.CooldownActive(last, ok, cfg.ChannelCooldown, now) {
		fired = append(fired, deferral{
			rule: domain.RuleChannelCooldown,
			code: domain.ReasonCooldown,
			text: fmt.Sprintf("channel %q is cooling down", ev.Channel),
			risk: riskCooldown,
		})
	}

	if len(fired) == 0 {
		resp.Verdict = domain.VerdictNow
		resp.Reason = domain.Reason{Code: domain.ReasonPassed, Text: "passed all checks"}
		resp.MatchedRuleIDs = []string{}
		return resp
	}

	if !cfg.IsUrgent(ev) {
		d := fired[0]
		return later(resp, cfg, d, []string{d.rule}, now)
	}

	var bypassed []string
	for _, d := range fired {
		if cfg.Bypasses(d.rule) {
			bypassed = append(bypassed, d.rule)
			continue
		}
		return later(resp, cfg, d, append(bypassed, d.rule), now)
	}
	resp.Verdict = domain.VerdictNow
	resp.Reason = domain.Reason{
		Code: domain.ReasonUrgentBypass,
		Text: "urgent event bypassed " + strings.Join(bypassed, ", "),
	}
	resp.MatchedRuleIDs = append(bypassed, domain.RuleUrgentBypass)
	return resp
}

func later(resp domain.DecisionResponse, cfg *rules.Config, d deferral, matched []string, now time.Time) domain.DecisionResponse {
	at := now.Add(cfg.DigestDelay)
	resp.Verdict = domain.VerdictLater
	resp.Reason = domain.Reason{Code: d.code, Text: d.text}
	resp.MatchedRuleIDs = matched
	resp.ScheduledFor = &at
	resp.RiskScore = d.risk
	return resp
}
