package state

import (
	"testing"
	"time"
)

func TestTimelineCountAndPrune(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tl timeline
	for _, m := range []int{0, 10, 30, 30, 59, 61} {
		tl.add(base.Add(time.Duration(m) * time.Minute))
	}
	// out-of-order insert lands sorted
	tl.add(base.Add(20 * time.Minute))

	for i := 1; i < len(tl); i++ {
		if tl[i].Before(tl[i-1]) {
			t.Fatalf("timeline not sorted at %d: %v", i, tl)
		}
	}

	now := base.Add(70 * time.Minute)
	// (10m, 70m] holds 20, 30, 30, 59, 61
	if got := tl.countSince(now, time.Hour); got != 5 {
		t.Fatalf("countSince = %d, want 5", got)
	}

	tl.pruneBefore(base.Add(30 * time.Minute))
	if len(tl) != 2 {
		t.Fatalf("len after prune = %d, want 2 (%v)", len(tl), tl)
	}
	tl.pruneBefore(base)
	if len(tl) != 2 {
		t.Fatalf("prune before first element removed entries")
	}
}
