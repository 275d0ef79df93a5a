package fatigue

import (
	"testing"
	"time"
)

func TestCaps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		count, limit int
		want         bool
	}{
		{0, 15, false},
		{14, 15, false},
		{15, 15, true},
		{99, 0, false},
	}
	for _, tt := range tests {
		if got := HourlyCapReached(tt.count, tt.limit); got != tt.want {
			t.Fatalf("HourlyCapReached(%d,%d) = %v, want %v", tt.count, tt.limit, got, tt.want)
		}
		if got := PromoCapReached(tt.count, tt.limit); got != tt.want {
			t.Fatalf("PromoCapReached(%d,%d) = %v, want %v", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestCooldownActive(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	tests := []struct {
		name     string
		last     time.Time
		ok       bool
		cooldown time.Duration
		want     bool
	}{
		{"never sent", time.Time{}, false, 3 * time.Minute, false},
		{"inside", now.Add(-2 * time.Minute), true, 3 * time.Minute, true},
		{"boundary", now.Add(-3 * time.Minute), true, 3 * time.Minute, false},
		{"disabled", now, true, 0, false},
	}
	for _, tt := range tests {
		if got := CooldownActive(tt.last, tt.ok, tt.cooldown, now); got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
