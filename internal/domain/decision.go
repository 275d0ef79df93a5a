package domain

import "time"

type Verdict string

const (
	VerdictNow   Verdict = "Now"
	VerdictLater Verdict = "Later"
	VerdictNever Verdict = "Never"
)

// Delivers reports whether the verdict counts toward delivery-rate counters.
func (v Verdict) Delivers() bool { return v == VerdictNow || v == VerdictLater }

// ReasonCode is the machine-readable part of a decision reason.
type ReasonCode string

const (
	ReasonExpired        ReasonCode = "expired"
	ReasonSuppressedType ReasonCode = "suppressed_type"
	ReasonExactDuplicate ReasonCode = "exact_duplicate"
	ReasonPromoCap       ReasonCode = "promo_cap_reached"
	ReasonNearDuplicate  ReasonCode = "near_duplicate_digest"
	ReasonHourlyCap      ReasonCode = "hourly_cap_reached"
	ReasonCooldown       ReasonCode = "channel_cooldown"
	ReasonPassed         ReasonCode = "passed_checks"
	ReasonUrgentBypass   ReasonCode = "urgent_bypass"
)

// Rule identifiers reported in DecisionResponse.MatchedRuleIDs, in
// evaluation order.
const (
	RuleExpiry          = "expiry"
	RuleSuppressList    = "suppress_list"
	RuleExactDedupe     = "exact_dedupe"
	RulePromoDailyCap   = "promo_daily_cap"
	RuleNearDedupe      = "near_dedupe"
	RuleHourlyCap       = "hourly_cap"
	RuleChannelCooldown = "channel_cooldown"
	RuleUrgentBypass    = "urgent_bypass"
)

type Reason struct {
	Code ReasonCode `json:"code"`
	Text string     `json:"text"`
}

// DecisionResponse is the engine's verdict for one event.
type DecisionResponse struct {
	Verdict        Verdict    `json:"verdict"`
	Reason         Reason     `json:"reason"`
	MatchedRuleIDs []string   `json:"matchedRuleIds"`
	DecidedAt      time.Time  `json:"decidedAt"`
	PolicyVersion  string     `json:"policyVersion"`
	RulesVersion   int64      `json:"rulesVersion"`
	ScheduledFor   *time.Time `json:"scheduledFor,omitempty"`
	RiskScore      float64    `json:"riskScore"`
	AIEnriched     bool       `json:"aiEnriched,omitempty"`
}
