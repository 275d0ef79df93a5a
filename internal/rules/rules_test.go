package rules

import (
	"errors"
	"sync"
	"testing"
	"time"

	"notiprio/internal/domain"
)

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		mod   func(c *Config)
		field string
	}{
		{name: "negative window", mod: func(c *Config) { c.DedupeWindow = -time.Second }, field: "dedupeWindow"},
		{name: "negative hourly cap", mod: func(c *Config) { c.HourlyCap = -1 }, field: "hourlyCap"},
		{name: "negative promo cap", mod: func(c *Config) { c.PromoDailyCap = -2 }, field: "promoDailyCap"},
		{name: "threshold above one", mod: func(c *Config) { c.NearDuplicateThreshold = 1.2 }, field: "nearDuplicateThreshold"},
		{name: "threshold below zero", mod: func(c *Config) { c.NearDuplicateThreshold = -0.1 }, field: "nearDuplicateThreshold"},
		{name: "negative ai timeout", mod: func(c *Config) { c.AITimeout = -time.Millisecond }, field: "aiTimeout"},
		{name: "blank suppressed type", mod: func(c *Config) { c.SuppressedEventTypes = []string{" "} }, field: "suppressedEventTypes"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tt.mod(&c)
			var cerr *domain.ConfigError
			if err := c.Validate(); !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Fatalf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestIsUrgentByFlagOrType(t *testing.T) {
	t.Parallel()
	c := Default()
	if !c.IsUrgent(domain.NotificationEvent{EventType: "reminder", Urgent: true}) {
		t.Fatal("flagged event should be urgent")
	}
	if !c.IsUrgent(domain.NotificationEvent{EventType: "security_alert"}) {
		t.Fatal("listed type should be urgent")
	}
	if c.IsUrgent(domain.NotificationEvent{EventType: "reminder"}) {
		t.Fatal("plain event should not be urgent")
	}
}

func TestRetention(t *testing.T) {
	t.Parallel()
	c := Default()
	if got := c.Retention(); got != DayWindow {
		t.Fatalf("Retention = %v, want %v", got, DayWindow)
	}
	c.DedupeWindow = 48 * time.Hour
	if got := c.Retention(); got != 48*time.Hour {
		t.Fatalf("Retention = %v, want 48h", got)
	}
}

func TestRegistryPublishKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Default(), 4)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	first := r.Current()
	if first.Version() != 1 {
		t.Fatalf("Version = %d, want 1", first.Version())
	}

	bad := Default()
	bad.NearDuplicateThreshold = 2
	if _, err := r.Publish(bad); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if r.Current() != first {
		t.Fatal("current snapshot changed after rejected publish")
	}

	next := Default()
	next.HourlyCap = 3
	snap, err := r.Publish(next)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if snap.Version() != 2 || r.Current().Rules().HourlyCap != 3 {
		t.Fatalf("unexpected current snapshot: v=%d cap=%d", snap.Version(), r.Current().Rules().HourlyCap)
	}
	if first.Rules().HourlyCap != 15 {
		t.Fatal("pinned snapshot observed a later publish")
	}
}

func TestRegistryGetAndEviction(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Default(), 2)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Publish(Default()); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if _, err := r.Get(1); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected evicted version 1, got %v", err)
	}
	s, err := r.Get(4)
	if err != nil || s.Version() != 4 {
		t.Fatalf("Get(4) = %v, %v", s, err)
	}
}

func TestRegistryConcurrentReadsSeeWholeSnapshots(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Default(), 0)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c := r.Current().Rules()
				// Writers always set both fields to the same value.
				if int(c.ChannelCooldown/time.Second) != c.HourlyCap {
					t.Errorf("torn read: cooldown=%v cap=%d", c.ChannelCooldown, c.HourlyCap)
					return
				}
			}
		}()
	}
	for i := 1; i <= 200; i++ {
		c := Default()
		c.HourlyCap = i
		c.ChannelCooldown = time.Duration(i) * time.Second
		if _, err := r.Publish(c); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRegistryOnSwap(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Default(), 0)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var got int64
	r.OnSwap(func(s *Snapshot) { got = s.Version() })
	if _, err := r.Publish(Default()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got != 2 {
		t.Fatalf("hook saw version %d, want 2", got)
	}
}
