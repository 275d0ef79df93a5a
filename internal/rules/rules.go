// Package rules holds the rule configuration snapshot evaluated by the
// decision engine and the registry that publishes new snapshots.
package rules

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"notiprio/internal/domain"
)

// UrgentBypass selects which deferral checks an urgent event may skip.
type UrgentBypass struct {
	NearDuplicate   bool `json:"nearDuplicate"`
	HourlyCap       bool `json:"hourlyCap"`
	ChannelCooldown bool `json:"channelCooldown"`
}

// Config is the full set of thresholds for one evaluation. A published
// Config is never mutated; use Clone before editing.
//
// A zero cap or zero cooldown disables that check.
type Config struct {
	Version       int64  `json:"version"`
	PolicyVersion string `json:"policyVersion"`

	DedupeWindow           time.Duration `json:"dedupeWindow"`
	NearDuplicateThreshold float64       `json:"nearDuplicateThreshold"`
	StripStopWords         bool          `json:"stripStopWords"`

	HourlyCap       int           `json:"hourlyCap"`
	ChannelCooldown time.Duration `json:"channelCooldown"`
	PromoDailyCap   int           `json:"promoDailyCap"`
	DigestDelay     time.Duration `json:"digestDelay"`

	SuppressedEventTypes  []string `json:"suppressedEventTypes"`
	PromotionalEventTypes []string `json:"promotionalEventTypes"`
	UrgentEventTypes      []string `json:"urgentEventTypes"`

	UrgentBypass UrgentBypass `json:"urgentBypass"`

	AITimeout    time.Duration `json:"aiTimeout"`
	MaxClockSkew time.Duration `json:"maxClockSkew"`
}

const (
	HourWindow = time.Hour
	DayWindow  = 24 * time.Hour
)

// Default returns the stock rule set.
func Default() Config {
	return Config{
		PolicyVersion:          "v1",
		DedupeWindow:           5 * time.Minute,
		NearDuplicateThreshold: 0.82,
		HourlyCap:              15,
		ChannelCooldown:        3 * time.Minute,
		PromoDailyCap:          3,
		DigestDelay:            10 * time.Minute,
		SuppressedEventTypes:   []string{"passive_tip"},
		PromotionalEventTypes:  []string{"promotion", "upsell"},
		UrgentEventTypes:       []string{"security_alert", "payment_failed", "message_direct"},
		UrgentBypass:           UrgentBypass{NearDuplicate: true, HourlyCap: true, ChannelCooldown: true},
		AITimeout:              20 * time.Millisecond,
		MaxClockSkew:           5 * time.Minute,
	}
}

// Validate rejects negative thresholds and an out-of-range similarity
// threshold.
func (c Config) Validate() error {
	durations := []struct {
		field string
		v     time.Duration
	}{
		{"dedupeWindow", c.DedupeWindow},
		{"channelCooldown", c.ChannelCooldown},
		{"digestDelay", c.DigestDelay},
		{"aiTimeout", c.AITimeout},
		{"maxClockSkew", c.MaxClockSkew},
	}
	for _, d := range durations {
		if d.v < 0 {
			return &domain.ConfigError{Field: d.field, Message: "must be >= 0"}
		}
	}
	if c.HourlyCap < 0 {
		return &domain.ConfigError{Field: "hourlyCap", Message: "must be >= 0"}
	}
	if c.PromoDailyCap < 0 {
		return &domain.ConfigError{Field: "promoDailyCap", Message: "must be >= 0"}
	}
	t := c.NearDuplicateThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return &domain.ConfigError{Field: "nearDuplicateThreshold", Message: fmt.Sprintf("must be within [0,1], got %v", t)}
	}
	for _, list := range []struct {
		field string
		v     []string
	}{
		{"suppressedEventTypes", c.SuppressedEventTypes},
		{"promotionalEventTypes", c.PromotionalEventTypes},
		{"urgentEventTypes", c.UrgentEventTypes},
	} {
		for _, s := range list.v {
			if strings.TrimSpace(s) == "" {
				return &domain.ConfigError{Field: list.field, Message: "contains a blank event type"}
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.SuppressedEventTypes = slices.Clone(c.SuppressedEventTypes)
	c.PromotionalEventTypes = slices.Clone(c.PromotionalEventTypes)
	c.UrgentEventTypes = slices.Clone(c.UrgentEventTypes)
	return c
}

func (c Config) IsSuppressed(eventType string) bool {
	return slices.Contains(c.SuppressedEventTypes, eventType)
}

func (c Config) IsPromotional(eventType string) bool {
	return slices.Contains(c.PromotionalEventTypes, eventType)
}

// IsUrgent reports whether ev is urgent either by flag or by event type.
func (c Config) IsUrgent(ev domain.NotificationEvent) bool {
	return ev.Urgent || slices.Contains(c.UrgentEventTypes, ev.EventType)
}

// Bypasses reports whether an urgent event may skip the given rule.
func (c Config) Bypasses(ruleID string) bool {
	switch ruleID {
	case domain.RuleNearDedupe:
		return c.UrgentBypass.NearDuplicate
	case domain.RuleHourlyCap:
		return c.UrgentBypass.HourlyCap
	case domain.RuleChannelCooldown:
		return c.UrgentBypass.ChannelCooldown
	default:
		return false
	}
}

// Retention is the longest window any check reads. State older than this
// can be pruned.
func (c Config) Retention() time.Duration {
	return max(DayWindow, c.DedupeWindow, c.ChannelCooldown)
}
