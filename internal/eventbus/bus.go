// Package eventbus fans decision outcomes out to in-process consumers such
// as the delivery sinks. Publish never blocks the decision path.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"notiprio/internal/domain"
)

const (
	TypeDecisionMade   = "decision.made"
	TypeRulesPublished = "rules.published"
	TypeStoreSwept     = "store.swept"
)

// Event is a small in-memory signal. Slow subscribers drop events rather
// than stall the publisher.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// DecisionMade is the Data of a TypeDecisionMade event.
type DecisionMade struct {
	Event    domain.NotificationEvent
	Response domain.DecisionResponse
}

// RulesPublished is the Data of a TypeRulesPublished event.
type RulesPublished struct {
	Version       int64
	PolicyVersion string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *Mem {
	return &Mem{subs: map[uint64]*sub{}}
}

type sub struct {
	ch     chan Event
	closed bool
}

type Mem struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *Mem) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe takes the write lock
	// before closing, so a send never hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.closed {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Mem) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			s.closed = true
			close(s.ch)
			b.mu.Unlock()
		})
	}
	return s.ch, unsub
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Mem) Dropped() uint64 { return b.dropped.Load() }
