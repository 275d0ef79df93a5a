package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"notiprio/internal/domain"
)

type failingAudit struct{}

func (failingAudit) Append(context.Context, domain.AuditRecord) error { return errors.New("disk full") }
func (failingAudit) History(context.Context, string, int) ([]domain.AuditRecord, error) {
	return nil, errors.New("disk full")
}
func (failingAudit) Close() error { return nil }

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func record(t *testing.T, m *Memory, userID, id string, at time.Time, deliver bool) {
	t.Helper()
	err := m.WithUser(context.Background(), userID, func(tx UserTx) error {
		ev := domain.NotificationEvent{ID: id, UserID: userID, Channel: "push", EventType: "reminder", Title: "t " + id}
		if err := tx.AppendAudit(context.Background(), domain.AuditRecord{ID: "a-" + id, EventID: id, UserID: userID}); err != nil {
			return err
		}
		tx.RecordEvent(ev, "k:"+id, []string{"t", id}, domain.VerdictNow, at)
		if deliver {
			tx.IncrementCounters(ev.Channel, false, at)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithUser: %v", err)
	}
}

func TestMemoryCountersAndLookups(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	record(t, m, "u1", "e1", t0, true)
	record(t, m, "u1", "e2", t0.Add(30*time.Minute), true)
	record(t, m, "u1", "e3", t0.Add(50*time.Minute), false)

	now := t0.Add(70 * time.Minute)
	err := m.WithUser(context.Background(), "u1", func(tx UserTx) error {
		if got := tx.HourlyCount(now); got != 1 {
			t.Fatalf("HourlyCount = %d, want 1", got)
		}
		last, ok := tx.ChannelLastSent("push")
		if !ok || !last.Equal(t0.Add(30*time.Minute)) {
			t.Fatalf("ChannelLastSent = %v %v", last, ok)
		}
		if _, ok := tx.LookupFingerprint("k:e3"); !ok {
			t.Fatal("fingerprint for e3 missing")
		}
		ps := tx.RecentProfiles("reminder", 30*time.Minute, now)
		if len(ps) != 1 || ps[0].EventID != "e3" {
			t.Fatalf("RecentProfiles = %+v", ps)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithUser: %v", err)
	}

	evs := m.RecentEvents("u1", time.Hour, now)
	if len(evs) != 2 || evs[0].EventID != "e2" {
		t.Fatalf("RecentEvents = %+v", evs)
	}

	hist, err := m.History(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].EventID != "e3" || hist[1].EventID != "e2" {
		t.Fatalf("History order = %+v", hist)
	}
}

func TestMemoryAuditFailureSurfacesStoreUnavailable(t *testing.T) {
	t.Parallel()
	m := NewMemory(WithAuditLog(failingAudit{}))
	err := m.WithUser(context.Background(), "u1", func(tx UserTx) error {
		return tx.AppendAudit(context.Background(), domain.AuditRecord{UserID: "u1"})
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := m.History(context.Background(), "u1", 10); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("History: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestMemorySweepDropsIdleUsers(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.SetRetention(time.Hour)
	record(t, m, "old", "e1", t0, true)
	record(t, m, "fresh", "e2", t0.Add(90*time.Minute), true)
	if m.Users() != 2 {
		t.Fatalf("Users = %d, want 2", m.Users())
	}

	st := m.Sweep(t0.Add(100 * time.Minute))
	if st.Dropped != 1 || st.Fingerprints != 1 {
		t.Fatalf("SweepStats = %+v", st)
	}
	if m.Users() != 1 {
		t.Fatalf("Users after sweep = %d, want 1", m.Users())
	}

	// A dropped user comes back cleanly.
	record(t, m, "old", "e3", t0.Add(101*time.Minute), true)
	if m.Users() != 2 {
		t.Fatalf("Users after re-create = %d, want 2", m.Users())
	}
}

func TestMemoryFingerprintStampAndPrune(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fp     string
		wantOK bool
		wantAt time.Time
	}{
		{name: "restamped survives", fp: "k:e1", wantOK: true, wantAt: t0.Add(50 * time.Minute)},
		{name: "unstamped keeps first and is pruned", fp: "", wantOK: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMemory()
			m.SetRetention(time.Hour)
			record(t, m, "u1", "e1", t0, false)
			_ = m.WithUser(context.Background(), "u1", func(tx UserTx) error {
				tx.RecordEvent(domain.NotificationEvent{ID: "e1b", EventType: "reminder"}, tt.fp, nil, domain.VerdictNever, t0.Add(50*time.Minute))
				if tt.fp == "" {
					if at, ok := tx.LookupFingerprint("k:e1"); !ok || !at.Equal(t0) {
						t.Fatalf("stamp moved: %v %v", at, ok)
					}
				}
				return nil
			})
			m.Sweep(t0.Add(70 * time.Minute))
			_ = m.WithUser(context.Background(), "u1", func(tx UserTx) error {
				at, ok := tx.LookupFingerprint("k:e1")
				if ok != tt.wantOK || (ok && !at.Equal(tt.wantAt)) {
					t.Fatalf("LookupFingerprint = %v %v", at, ok)
				}
				return nil
			})
		})
	}
}

func TestMemoryWithUserHonoursContext(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = m.WithUser(context.Background(), "u1", func(UserTx) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.WithUser(ctx, "u1", func(UserTx) error { return nil })
	close(hold)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryConcurrentUsersAndSweep(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.SetRetention(time.Minute)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			uid := fmt.Sprintf("user-%d", u)
			for i := 0; i < 200; i++ {
				_ = m.WithUser(context.Background(), uid, func(tx UserTx) error {
					tx.IncrementCounters("push", false, t0)
					return nil
				})
			}
		}(u)
	}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				m.Sweep(t0.Add(2 * time.Minute))
			}
		}
	}()
	wg.Wait()
	close(stop)

	if m.Users() < 0 || m.Users() > 8 {
		t.Fatalf("Users = %d out of range", m.Users())
	}
}
