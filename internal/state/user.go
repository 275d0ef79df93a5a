package state

import (
	"context"
	"fmt"
	"sort"
	"time"

	"notiprio/internal/dedupe"
	"notiprio/internal/domain"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour

	// maxRecentEvents bounds the per-user history independent of
	// retention.
	maxRecentEvents = 2048
)

type fpMark struct {
	fp string
	at time.Time
}

// userState is one user's rolling state. Guarded by mu; dead is set once
// the entry has been removed from its shard.
type userState struct {
	mu   chanMutex
	dead bool

	fingerprints map[string]time.Time
	// fpOrder holds (fingerprint, seenAt) marks in insertion order. A mark
	// is stale when the map holds a newer seenAt for its fingerprint.
	fpOrder []fpMark

	profiles map[string][]dedupe.Profile
	events   []domain.HistoryEntry

	deliveries timeline
	promos     timeline
	lastSent   map[string]time.Time
}

func newUserState() *userState {
	return &userState{
		mu:           newChanMutex(),
		fingerprints: map[string]time.Time{},
		profiles:     map[string][]dedupe.Profile{},
		lastSent:     map[string]time.Time{},
	}
}

func (u *userState) empty() bool {
	return len(u.fingerprints) == 0 && len(u.events) == 0 &&
		len(u.deliveries) == 0 && len(u.promos) == 0 &&
		len(u.lastSent) == 0 && len(u.profiles) == 0
}

// prune drops everything recorded at or before cutoff and returns how many
// fingerprints and events went.
func (u *userState) prune(cutoff time.Time) (fps, events int) {
	i := 0
	for ; i < len(u.fpOrder); i++ {
		m := u.fpOrder[i]
		if m.at.After(cutoff) {
			break
		}
		if seen, ok := u.fingerprints[m.fp]; ok && seen.Equal(m.at) {
			delete(u.fingerprints, m.fp)
			fps++
		}
	}
	if i > 0 {
		u.fpOrder = append(u.fpOrder[:0:0], u.fpOrder[i:]...)
	}

	for et, ps := range u.profiles {
		j := sort.Search(len(ps), func(k int) bool { return ps[k].At.After(cutoff) })
		if j == len(ps) {
			delete(u.profiles, et)
			continue
		}
		if j > 0 {
			u.profiles[et] = append(ps[:0:0], ps[j:]...)
		}
	}

	j := sort.Search(len(u.events), func(k int) bool { return u.events[k].At.After(cutoff) })
	if j > 0 {
		u.events = append(u.events[:0:0], u.events[j:]...)
		events = j
	}

	u.deliveries.pruneBefore(cutoff)
	u.promos.pruneBefore(cutoff)
	for ch, at := range u.lastSent {
		if !at.After(cutoff) {
			delete(u.lastSent, ch)
		}
	}
	return fps, events
}

// userTx binds a locked userState to the store's audit log.
type userTx struct {
	u      *userState
	userID string
	audit  AuditLog
}

func (tx *userTx) LookupFingerprint(fp string) (time.Time, bool) {
	at, ok := tx.u.fingerprints[fp]
	return at, ok
}

func (tx *userTx) RecentProfiles(eventType string, window time.Duration, now time.Time) []dedupe.Profile {
	ps := tx.u.profiles[eventType]
	if window <= 0 || len(ps) == 0 {
		return nil
	}
	cutoff := now.Add(-window)
	i := sort.Search(len(ps), func(k int) bool { return ps[k].At.After(cutoff) })
	return ps[i:len(ps):len(ps)]
}

func (tx *userTx) HourlyCount(now time.Time) int {
	return tx.u.deliveries.countSince(now, hourWindow)
}

func (tx *userTx) ChannelLastSent(channel string) (time.Time, bool) {
	at, ok := tx.u.lastSent[channel]
	return at, ok
}

func (tx *userTx) DailyPromoCount(now time.Time) int {
	return tx.u.promos.countSince(now, dayWindow)
}

func (tx *userTx) AppendAudit(ctx context.Context, rec domain.AuditRecord) error {
	if err := tx.audit.Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit for user %s: %w: %w", tx.userID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (tx *userTx) RecordEvent(ev domain.NotificationEvent, fp string, tokens []string, verdict domain.Verdict, now time.Time) {
	u := tx.u
	if fp != "" {
		u.fingerprints[fp] = now
		u.fpOrder = append(u.fpOrder, fpMark{fp: fp, at: now})
	}
	if len(tokens) > 0 {
		u.profiles[ev.EventType] = insertProfile(u.profiles[ev.EventType], dedupe.Profile{EventID: ev.ID, Tokens: tokens, At: now})
	}
	u.events = append(u.events, domain.HistoryEntry{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Channel:   ev.Channel,
		Title:     ev.Title,
		Verdict:   verdict,
		At:        now,
	})
	if n := len(u.events); n > maxRecentEvents {
		u.events = append(u.events[:0:0], u.events[n-maxRecentEvents:]...)
	}
}

func (tx *userTx) IncrementCounters(channel string, promotional bool, now time.Time) {
	u := tx.u
	u.deliveries.add(now)
	if promotional {
		u.promos.add(now)
	}
	if prev, ok := u.lastSent[channel]; !ok || now.After(prev) {
		u.lastSent[channel] = now
	}
}

func insertProfile(ps []dedupe.Profile, p dedupe.Profile) []dedupe.Profile {
	n := len(ps)
	if n == 0 || !p.At.Before(ps[n-1].At) {
		return append(ps, p)
	}
	i := sort.Search(n, func(k int) bool { return ps[k].At.After(p.At) })
	ps = append(ps, dedupe.Profile{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	return ps
}
