package state

import (
	"slices"
	"time"
)

// timeline is an ascending list of instants. Window counts are binary
// searches and pruning drops a prefix.
type timeline []time.Time

func (tl *timeline) add(t time.Time) {
	s := *tl
	if n := len(s); n == 0 || !t.Before(s[n-1]) {
		*tl = append(s, t)
		return
	}
	i, _ := slices.BinarySearchFunc(s, t, compareTime)
	*tl = slices.Insert(s, i, t)
}

// countSince returns how many instants fall in the trailing window
// (now-window, now].
func (tl timeline) countSince(now time.Time, window time.Duration) int {
	from := tl.firstAfter(now.Add(-window))
	to := tl.firstAfter(now)
	return to - from
}

// firstAfter is the index of the first instant strictly after t.
func (tl timeline) firstAfter(t time.Time) int {
	i, found := slices.BinarySearchFunc(tl, t, compareTime)
	for found && i < len(tl) && tl[i].Equal(t) {
		i++
	}
	return i
}

// pruneBefore drops every instant at or before cutoff.
func (tl *timeline) pruneBefore(cutoff time.Time) {
	i := tl.firstAfter(cutoff)
	if i == 0 {
		return
	}
	*tl = slices.Delete(*tl, 0, i)
}

func compareTime(a, b time.Time) int { return a.Compare(b) }
