// Package metrics counts decision outcomes and latencies. Counters are
// lock-free; latency percentiles come from a fixed ring of recent samples.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"notiprio/internal/domain"
)

const latencyRingSize = 4096

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	StartedAt time.Time `json:"startedAt"`
	TakenAt   time.Time `json:"takenAt"`

	Decisions uint64 `json:"decisions"`
	Now       uint64 `json:"now"`
	Later     uint64 `json:"later"`
	Never     uint64 `json:"never"`

	ExactDedupeHits    uint64 `json:"exactDedupeHits"`
	NearDedupeHits     uint64 `json:"nearDedupeHits"`
	HourlyCapDefers    uint64 `json:"hourlyCapDefers"`
	CooldownDefers     uint64 `json:"cooldownDefers"`
	PromoCapDrops      uint64 `json:"promoCapDrops"`
	SuppressedDrops    uint64 `json:"suppressedDrops"`
	ExpiredDrops       uint64 `json:"expiredDrops"`
	UrgentPassThroughs uint64 `json:"urgentPassThroughs"`

	AIFallbacks uint64 `json:"aiFallbacks"`
	AITimeouts  uint64 `json:"aiTimeouts"`
	AIErrors    uint64 `json:"aiErrors"`

	ValidationErrors uint64 `json:"validationErrors"`
	StoreErrors      uint64 `json:"storeErrors"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP99 time.Duration `json:"latencyP99"`
	LatencyMax time.Duration `json:"latencyMax"`

	UsersTracked  int    `json:"usersTracked"`
	PolicyVersion string `json:"policyVersion"`
	RulesVersion  int64  `json:"rulesVersion"`
}

// AIOutcome classifies one advisor call.
type AIOutcome int

const (
	AIOK AIOutcome = iota
	AITimeout
	AIError
)

// Collector accumulates decision metrics. The zero value is not usable;
// call NewCollector.
type Collector struct {
	startedAt time.Time

	decisions atomic.Uint64
	now       atomic.Uint64
	later     atomic.Uint64
	never     atomic.Uint64

	exact      atomic.Uint64
	near       atomic.Uint64
	hourly     atomic.Uint64
	cooldown   atomic.Uint64
	promo      atomic.Uint64
	suppressed atomic.Uint64
	expired    atomic.Uint64
	urgent     atomic.Uint64

	aiFallback atomic.Uint64
	aiTimeout  atomic.Uint64
	aiError    atomic.Uint64

	validation atomic.Uint64
	store      atomic.Uint64

	latMu   sync.Mutex
	lat     []time.Duration
	latNext int
	latMax  time.Duration
}

func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now().UTC(),
		lat:       make([]time.Duration, 0, latencyRingSize),
	}
}

// ObserveDecision records one completed decision.
func (c *Collector) ObserveDecision(resp domain.DecisionResponse, latency time.Duration) {
	c.decisions.Add(1)
	switch resp.Verdict {
	case domain.VerdictNow:
		c.now.Add(1)
	case domain.VerdictLater:
		c.later.Add(1)
	case domain.VerdictNever:
		c.never.Add(1)
	}
	switch resp.Reason.Code {
	case domain.ReasonExactDuplicate:
		c.exact.Add(1)
	case domain.ReasonNearDuplicate:
		c.near.Add(1)
	case domain.ReasonHourlyCap:
		c.hourly.Add(1)
	case domain.ReasonCooldown:
		c.cooldown.Add(1)
	case domain.ReasonPromoCap:
		c.promo.Add(1)
	case domain.ReasonSuppressedType:
		c.suppressed.Add(1)
	case domain.ReasonExpired:
		c.expired.Add(1)
	case domain.ReasonUrgentBypass:
		c.urgent.Add(1)
	}
	c.observeLatency(latency)
}

func (c *Collector) ObserveAI(o AIOutcome) {
	switch o {
	case AITimeout:
		c.aiFallback.Add(1)
		c.aiTimeout.Add(1)
	case AIError:
		c.aiFallback.Add(1)
		c.aiError.Add(1)
	}
}

func (c *Collector) ObserveValidationError() { c.validation.Add(1) }
func (c *Collector) ObserveStoreError()      { c.store.Add(1) }

func (c *Collector) observeLatency(d time.Duration) {
	c.latMu.Lock()
	defer c.latMu.Unlock()
	if len(c.lat) < latencyRingSize {
		c.lat = append(c.lat, d)
	} else {
		c.lat[c.latNext] = d
		c.latNext = (c.latNext + 1) % latencyRingSize
	}
	if d > c.latMax {
		c.latMax = d
	}
}

// Snapshot copies the counters. UsersTracked and the policy fields are
// left for the caller to fill.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		StartedAt:          c.startedAt,
		TakenAt:            time.Now().UTC(),
		Decisions:          c.decisions.Load(),
		Now:                c.now.Load(),
		Later:              c.later.Load(),
		Never:              c.never.Load(),
		ExactDedupeHits:    c.exact.Load(),
		NearDedupeHits:     c.near.Load(),
		HourlyCapDefers:    c.hourly.Load(),
		CooldownDefers:     c.cooldown.Load(),
		PromoCapDrops:      c.promo.Load(),
		SuppressedDrops:    c.suppressed.Load(),
		ExpiredDrops:       c.expired.Load(),
		UrgentPassThroughs: c.urgent.Load(),
		AIFallbacks:        c.aiFallback.Load(),
		AITimeouts:         c.aiTimeout.Load(),
		AIErrors:           c.aiError.Load(),
		ValidationErrors:   c.validation.Load(),
		StoreErrors:        c.store.Load(),
	}

	c.latMu.Lock()
	samples := slices.Clone(c.lat)
	s.LatencyMax = c.latMax
	c.latMu.Unlock()

	if len(samples) > 0 {
		slices.Sort(samples)
		s.LatencyP50 = percentile(samples, 50)
		s.LatencyP90 = percentile(samples, 90)
		s.LatencyP99 = percentile(samples, 99)
	}
	return s
}

// percentile uses nearest-rank over sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
