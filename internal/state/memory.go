package state

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

const (
	shardCount       = 64
	defaultRetention = 48 * time.Hour
)

// chanMutex is a mutex whose Lock can be abandoned when ctx ends.
type chanMutex chan struct{}

func newChanMutex() chanMutex { return make(chanMutex, 1) }

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

type shard struct {
	mu    sync.Mutex
	users map[string]*userState
}

// Memory is the in-process Store. Audit records go to the configured
// AuditLog; everything else lives in sharded per-user maps.
type Memory struct {
	shards    [shardCount]shard
	audit     AuditLog
	retention atomic.Int64
	users     atomic.Int64
	closed    atomic.Bool
	log       logx.Logger
}

type MemoryOption func(*Memory)

// WithAuditLog replaces the default in-memory audit log.
func WithAuditLog(a AuditLog) MemoryOption {
	return func(m *Memory) {
		if a != nil {
			m.audit = a
		}
	}
}

func WithLogger(log logx.Logger) MemoryOption {
	return func(m *Memory) { m.log = log }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{audit: NewMemoryAudit(), log: logx.Nop()}
	for i := range m.shards {
		m.shards[i].users = map[string]*userState{}
	}
	m.retention.Store(int64(defaultRetention))
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With(logx.String("comp", "state"))
	return m
}

var errClosed = errors.New("state store closed")

func (m *Memory) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &m.shards[h.Sum32()%shardCount]
}

// acquire returns userID's locked state, creating it when absent. A state
// removed by a concurrent Sweep is never returned.
func (m *Memory) acquire(ctx context.Context, userID string) (*userState, error) {
	sh := m.shardFor(userID)
	for {
		sh.mu.Lock()
		u, ok := sh.users[userID]
		if !ok {
			u = newUserState()
			sh.users[userID] = u
			m.users.Add(1)
		}
		sh.mu.Unlock()

		if err := u.mu.lock(ctx); err != nil {
			return nil, err
		}
		if !u.dead {
			return u, nil
		}
		u.mu.unlock()
	}
}

func (m *Memory) WithUser(ctx context.Context, userID string, fn func(tx UserTx) error) error {
	if m.closed.Load() {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := m.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer u.mu.unlock()
	return fn(&userTx{u: u, userID: userID, audit: m.audit})
}

func (m *Memory) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	recs, err := m.audit.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history for user %s: %w: %w", userID, domain.ErrStoreUnavailable, err)
	}
	return recs, nil
}

func (m *Memory) RecentEvents(userID string, window time.Duration, now time.Time) []domain.HistoryEntry {
	sh := m.shardFor(userID)
	sh.mu.Lock()
	u, ok := sh.users[userID]
	sh.mu.Unlock()
	if !ok {
		return nil
	}
	if err := u.mu.lock(context.Background()); err != nil {
		return nil
	}
	defer u.mu.unlock()
	if u.dead {
		return nil
	}
	cutoff := now.Add(-window)
	out := make([]domain.HistoryEntry, 0, len(u.events))
	for _, e := range u.events {
		if window <= 0 || e.At.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) SetRetention(d time.Duration) {
	if d <= 0 {
		d = defaultRetention
	}
	m.retention.Store(int64(d))
}

func (m *Memory) Retention() time.Duration { return time.Duration(m.retention.Load()) }

func (m *Memory) Sweep(now time.Time) SweepStats {
	cutoff := now.Add(-m.Retention())
	var st SweepStats
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		ids := make([]string, 0, len(sh.users))
		states := make([]*userState, 0, len(sh.users))
		for id, u := range sh.users {
			ids = append(ids, id)
			states = append(states, u)
		}
		sh.mu.Unlock()

		for k, u := range states {
			_ = u.mu.lock(context.Background())
			if u.dead {
				u.mu.unlock()
				continue
			}
			st.Users++
			fps, evs := u.prune(cutoff)
			st.Fingerprints += fps
			st.Events += evs
			if u.empty() {
				sh.mu.Lock()
				if sh.users[ids[k]] == u {
					delete(sh.users, ids[k])
					u.dead = true
					m.users.Add(-1)
					st.Dropped++
				}
				sh.mu.Unlock()
			}
			u.mu.unlock()
		}
	}
	if st.Dropped > 0 || st.Fingerprints > 0 {
		m.log.Debug("swept state",
			logx.Int("users", st.Users),
			logx.Int("dropped", st.Dropped),
			logx.Int("fingerprints", st.Fingerprints),
			logx.Int("events", st.Events),
		)
	}
	return st
}

func (m *Memory) Users() int { return int(m.users.Load()) }

func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.audit.Close()
}
