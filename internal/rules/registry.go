package rules

import (
	"slices"
	"sync"
	"sync/atomic"

	"notiprio/internal/domain"
)

// DefaultKeep is how many past snapshots stay addressable by version.
const DefaultKeep = 32

// Snapshot is an immutable published Config. Readers pin one per decision.
type Snapshot struct {
	cfg Config
}

func (s *Snapshot) Version() int64 { return s.cfg.Version }

// Config returns a copy of the snapshot's rules.
func (s *Snapshot) Config() Config { return s.cfg.Clone() }

// Rules exposes the pinned rules without copying. Callers must not mutate
// the slices.
func (s *Snapshot) Rules() *Config { return &s.cfg }

// Registry publishes rule snapshots copy-on-write. Current never blocks and
// never observes a partially built snapshot.
type Registry struct {
	cur atomic.Pointer[Snapshot]

	// mu serializes publishers and guards the version index.
	mu     sync.Mutex
	seq    int64
	byVer  map[int64]*Snapshot
	order  []int64
	keep   int
	onSwap []func(*Snapshot)
}

// NewRegistry validates and publishes initial as version 1.
func NewRegistry(initial Config, keep int) (*Registry, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	r := &Registry{byVer: map[int64]*Snapshot{}, keep: keep}
	if _, err := r.Publish(initial); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the latest published snapshot.
func (r *Registry) Current() *Snapshot { return r.cur.Load() }

// Get returns a retained snapshot by version.
func (r *Registry) Get(version int64) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byVer[version]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return s, nil
}

// OnSwap registers a callback run after each successful publish.
func (r *Registry) OnSwap(fn func(*Snapshot)) {
	r.mu.Lock()
	r.onSwap = append(r.onSwap, fn)
	r.mu.Unlock()
}

// Publish validates cfg and makes it the current snapshot. On error the
// previous snapshot remains active.
func (r *Registry) Publish(cfg Config) (*Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	r.mu.Lock()
	r.seq++
	cfg.Version = r.seq
	snap := &Snapshot{cfg: cfg}
	r.byVer[cfg.Version] = snap
	r.order = append(r.order, cfg.Version)
	for len(r.order) > r.keep {
		delete(r.byVer, r.order[0])
		r.order = r.order[1:]
	}
	r.cur.Store(snap)
	hooks := slices.Clone(r.onSwap)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(snap)
	}
	return snap, nil
}
