package dedupe

import (
	"math"
	"slices"
	"testing"
	"time"

	"notiprio/internal/domain"
)

type lookupMap map[string]time.Time

func (m lookupMap) LookupFingerprint(fp string) (time.Time, bool) {
	t, ok := m[fp]
	return t, ok
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	base := domain.NotificationEvent{UserID: "u1", Channel: "push", EventType: "reminder", Title: "Hello  World", Message: "Body"}

	keyed := base
	keyed.DedupeKey = "order-42"
	if got := Fingerprint(keyed); got != "k:order-42" {
		t.Fatalf("Fingerprint(keyed) = %q", got)
	}

	spaced := base
	spaced.Title = "hello world"
	if Fingerprint(base) != Fingerprint(spaced) {
		t.Fatal("case and whitespace should not change the fingerprint")
	}

	otherChannel := base
	otherChannel.Channel = "email"
	if Fingerprint(base) == Fingerprint(otherChannel) {
		t.Fatal("channel must be part of the fingerprint")
	}
}

func TestIsExactDuplicate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := lookupMap{"k:a": now.Add(-4 * time.Minute), "k:b": now.Add(-6 * time.Minute)}

	tests := []struct {
		fp     string
		window time.Duration
		want   bool
	}{
		{"k:a", 5 * time.Minute, true},
		{"k:b", 5 * time.Minute, false},
		{"k:c", 5 * time.Minute, false},
		{"k:a", 0, false},
	}
	for _, tt := range tests {
		if got := IsExactDuplicate(m, tt.fp, tt.window, now); got != tt.want {
			t.Fatalf("IsExactDuplicate(%s, %v) = %v, want %v", tt.fp, tt.window, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	got := Tokens("Your order #42 has SHIPPED, your order!", false)
	want := []string{"42", "has", "order", "shipped", "your"}
	if !slices.Equal(got, want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}

	got = Tokens("Your order has shipped", true)
	want = []string{"order", "shipped"}
	if !slices.Equal(got, want) {
		t.Fatalf("Tokens(strip) = %v, want %v", got, want)
	}
}

func TestJaccard(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"half", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3},
		{"empty left", nil, []string{"a"}, 0},
		{"both empty", nil, nil, 0},
	}
	for _, tt := range tests {
		if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("%s: Jaccard = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFindNearDuplicateEarliestWins(t *testing.T) {
	t.Parallel()
	now := time.Now()
	cands := []Profile{
		{EventID: "old", Tokens: []string{"a", "b", "c", "d"}, At: now.Add(-3 * time.Minute)},
		{EventID: "new", Tokens: []string{"a", "b", "c", "d"}, At: now.Add(-time.Minute)},
	}
	m, ok := FindNearDuplicate(cands, []string{"a", "b", "c", "d"}, 0.82)
	if !ok || m.EventID != "old" {
		t.Fatalf("match = %+v ok=%v, want old", m, ok)
	}

	if _, ok := FindNearDuplicate(cands, []string{"a", "x", "y", "z"}, 0.82); ok {
		t.Fatal("dissimilar text should not match")
	}
	if _, ok := FindNearDuplicate(cands, nil, 0); ok {
		t.Fatal("empty token set should never match")
	}
}
