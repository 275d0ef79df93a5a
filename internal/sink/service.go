package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"notiprio/internal/domain"
	"notiprio/internal/eventbus"
	rtsup "notiprio/internal/runtime/supervisor"
	logx "notiprio/pkg/logx"
)

var (
	ErrQueueFull = errors.New("sink queue full")
	ErrStopped   = errors.New("sink stopped")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	pub     Publisher
	bus     eventbus.Bus
	cfg     Config
	limiter *rate.Limiter

	queue chan Message
	sup   *rtsup.Supervisor
	unsub func()

	queued    atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
}

func New(cfg Config, pub Publisher, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{pub: pub, bus: bus, log: log.With(logx.String("comp", "sink"))}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 200
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if len(cfg.Verdicts) == 0 {
		cfg.Verdicts = []domain.Verdict{domain.VerdictNow, domain.VerdictLater}
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes pass.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Apply swaps rate, retry and verdict settings. Worker and queue sizes
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// Start subscribes to the bus and launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || s.pub == nil {
		return
	}
	s.queue = make(chan Message, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	q, sup := s.queue, s.sup

	for i := 0; i < s.cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("sink.worker.%d", i), func(c context.Context) error {
			return s.workerLoop(c, q)
		}, rtsup.WithPublishFirstError(true))
	}

	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(s.cfg.QueueSize)
		s.unsub = unsub
		sup.Go("sink.subscriber", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-ch:
					if !ok {
						return nil
					}
					if e.Type != eventbus.TypeDecisionMade {
						continue
					}
					if dm, ok := e.Data.(eventbus.DecisionMade); ok {
						_ = s.Enqueue(dm.Event, dm.Response)
					}
				}
			}
		})
	}
}

// Stop unsubscribes, drains the queue until ctx ends, then closes the
// publisher.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	q, sup, unsub := s.queue, s.sup, s.unsub
	s.queue, s.sup, s.unsub = nil, nil, nil
	s.mu.Unlock()
	if q == nil {
		return nil
	}
	if unsub != nil {
		unsub()
	}

	// Let workers drain what is already queued.
	deadline := time.NewTicker(10 * time.Millisecond)
	defer deadline.Stop()
drain:
	for len(q) > 0 {
		select {
		case <-ctx.Done():
			break drain
		case <-deadline.C:
		}
	}
	err := sup.Stop(ctx)
	if cerr := s.pub.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if n := len(q); n > 0 {
		s.dropped.Add(uint64(n))
		s.log.Warn("sink stopped with undelivered messages", logx.Int("count", n))
	}
	return err
}

// Enqueue forwards one decision if its verdict is selected.
func (s *Service) Enqueue(ev domain.NotificationEvent, resp domain.DecisionResponse) error {
	s.mu.Lock()
	q := s.queue
	verdicts := s.cfg.Verdicts
	s.mu.Unlock()
	if q == nil {
		return ErrStopped
	}
	if !slices.Contains(verdicts, resp.Verdict) {
		s.skipped.Add(1)
		return nil
	}

	body, err := json.Marshal(Payload{Event: ev, Decision: resp})
	if err != nil {
		return err
	}
	msg := Message{ID: uuid.NewString(), Key: ev.UserID, Verdict: resp.Verdict, At: resp.DecidedAt, Body: body}

	select {
	case q <- msg:
		s.queued.Add(1)
		return nil
	default:
		s.dropped.Add(1)
		s.log.Warn("sink queue full, dropping", logx.String("event_id", ev.ID), logx.String("user_id", ev.UserID))
		return ErrQueueFull
	}
}

func (s *Service) Stats() Stats {
	return Stats{
		Queued:    s.queued.Load(),
		Published: s.published.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Skipped:   s.skipped.Load(),
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-q:
			s.sendWithRetry(ctx, m)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, m Message) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := s.pub.Publish(callCtx, m)
		cancel()
		if err == nil {
			s.published.Add(1)
			return
		}
		lastErr = err
		s.log.Debug("publish failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		t := time.NewTimer(rtsup.Backoff(attempt, cfg.RetryBase, cfg.RetryMaxDelay))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.failed.Add(1)
	s.log.Warn("publish gave up", logx.String("key", m.Key), logx.String("id", m.ID), logx.Err(lastErr))
}
