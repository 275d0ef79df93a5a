// Package state keeps the rolling per-user history the decision engine
// reads and writes: fingerprints, token profiles, delivery timelines,
// channel last-sent times and the audit log.
//
// All reads and writes for one user happen inside WithUser, which holds
// that user's lock for the duration of the callback. Different users never
// contend beyond a brief shard lookup.
package state

import (
	"context"
	"time"

	"notiprio/internal/dedupe"
	"notiprio/internal/domain"
)

// Store is the per-user state the engine evaluates against.
type Store interface {
	// WithUser runs fn with exclusive access to userID's state.
	WithUser(ctx context.Context, userID string, fn func(tx UserTx) error) error

	// History returns userID's audit records, most recent first.
	History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error)

	// RecentEvents returns userID's recorded events inside window, oldest
	// first.
	RecentEvents(userID string, window time.Duration, now time.Time) []domain.HistoryEntry

	// Sweep prunes expired state for every user and drops users left
	// without any.
	Sweep(now time.Time) SweepStats

	// SetRetention sets how long state is kept. It must cover the longest
	// window any check reads.
	SetRetention(d time.Duration)

	// Users is the number of users currently tracked.
	Users() int

	Close() error
}

// UserTx is one user's state while their lock is held. It must not be
// retained after the WithUser callback returns.
type UserTx interface {
	dedupe.FingerprintLookup

	// RecentProfiles returns token profiles for eventType inside window,
	// oldest first.
	RecentProfiles(eventType string, window time.Duration, now time.Time) []dedupe.Profile

	// HourlyCount is the number of deliveries in the trailing hour.
	HourlyCount(now time.Time) int

	// ChannelLastSent is the last delivery time on channel.
	ChannelLastSent(channel string) (time.Time, bool)

	// DailyPromoCount is the number of promotional deliveries in the
	// trailing 24 hours.
	DailyPromoCount(now time.Time) int

	// AppendAudit persists rec. A failure wraps domain.ErrStoreUnavailable
	// and the caller must not mutate any other state.
	AppendAudit(ctx context.Context, rec domain.AuditRecord) error

	// RecordEvent adds ev to the history and token profiles. A non-empty fp
	// is stamped with now; callers pass "" to leave an existing stamp alone.
	RecordEvent(ev domain.NotificationEvent, fp string, tokens []string, verdict domain.Verdict, now time.Time)

	// IncrementCounters records a delivery on channel.
	IncrementCounters(channel string, promotional bool, now time.Time)
}

// SweepStats reports what a Sweep removed.
type SweepStats struct {
	Users        int
	Dropped      int
	Fingerprints int
	Events       int
}

// AuditLog is the append-only audit sink. Implementations must be safe for
// concurrent use across users.
type AuditLog interface {
	Append(ctx context.Context, rec domain.AuditRecord) error
	History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error)
	Close() error
}
