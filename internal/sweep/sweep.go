// Package sweep prunes expired per-user state on a cron schedule so idle
// users do not hold memory until their next decision.
package sweep

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"notiprio/internal/eventbus"
	"notiprio/internal/state"
	logx "notiprio/pkg/logx"
)

const DefaultSchedule = "@every 1m"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec parses. An empty spec is valid and
// means DefaultSchedule.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(normalize(spec)); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	return nil
}

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
}

// Sweeper is the part of the state store this service drives.
type Sweeper interface {
	Sweep(now time.Time) state.SweepStats
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	store Sweeper
	bus   eventbus.Bus
	clock func() time.Time
	log   logx.Logger

	runs atomic.Uint64
	last atomic.Value // state.SweepStats
}

func New(cfg Config, store Sweeper, bus eventbus.Bus, clock func() time.Time, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:   cfg,
		store: store,
		bus:   bus,
		clock: clock,
		log:   log.With(logx.String("comp", "sweep")),
	}
}

func normalize(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultSchedule
	}
	return spec
}

// Start schedules the sweep. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone, using UTC", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	spec := normalize(s.cfg.Schedule)
	if _, err := c.AddFunc(spec, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("sweeper started", logx.String("schedule", spec), logx.String("tz", loc.String()))
	return nil
}

// Stop stops scheduling and waits for a running sweep until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the config, restarting the schedule if it changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.c == nil && !cfg.Enabled {
		return nil
	}
	if s.c != nil && old.Enabled == cfg.Enabled &&
		normalize(old.Schedule) == normalize(cfg.Schedule) && old.Timezone == cfg.Timezone {
		return nil
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !cfg.Enabled {
		s.log.Info("sweeper disabled")
		return nil
	}
	return s.startLocked()
}

// RunOnce sweeps immediately.
func (s *Service) RunOnce() state.SweepStats {
	start := time.Now()
	st := s.store.Sweep(s.clock())
	s.runs.Add(1)
	s.last.Store(st)
	s.log.Debug("sweep finished",
		logx.Int("users", st.Users),
		logx.Int("dropped", st.Dropped),
		logx.Duration("took", time.Since(start)),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeStoreSwept, Data: st})
	}
	return st
}

func (s *Service) Runs() uint64 { return s.runs.Load() }

// cronLogger routes cron's own messages through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
