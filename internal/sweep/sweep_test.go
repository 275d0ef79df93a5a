package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"notiprio/internal/eventbus"
	"notiprio/internal/state"
	logx "notiprio/pkg/logx"
)

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) Sweep(time.Time) state.SweepStats {
	c.n.Add(1)
	return state.SweepStats{Users: 3, Dropped: 1}
}

func TestRunOncePublishes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()
	sw := &countingSweeper{}
	s := New(Config{}, sw, bus, nil, logx.Nop())

	st := s.RunOnce()
	if st.Dropped != 1 || s.Runs() != 1 {
		t.Fatalf("RunOnce = %+v runs=%d", st, s.Runs())
	}
	e := <-ch
	if e.Type != eventbus.TypeStoreSwept {
		t.Fatalf("event = %+v", e)
	}
}

func TestScheduledSweep(t *testing.T) {
	t.Parallel()
	sw := &countingSweeper{}
	s := New(Config{Enabled: true, Schedule: "@every 1s"}, sw, nil, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for sw.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sw.n.Load() == 0 {
		t.Fatal("scheduled sweep never ran")
	}
}

func TestValidateAndApply(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &countingSweeper{}, nil, nil, logx.Nop())
	if err := ValidateSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := ValidateSchedule("every so often"); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.Apply(Config{Enabled: true, Schedule: "not a spec"}); err == nil {
		t.Fatal("expected Apply to reject bad schedule")
	}
	if err := s.Apply(Config{Enabled: true, Schedule: "@every 1h"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Apply(Config{Enabled: false}); err != nil {
		t.Fatalf("Apply(disable): %v", err)
	}
	s.Stop(context.Background())
}
