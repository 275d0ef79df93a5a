// Package fatigue holds the delivery-rate checks. Counts come from the
// state store; limits come from the pinned rule snapshot.
package fatigue

import "time"

// HourlyCapReached reports whether another delivery would exceed limit.
// A zero limit disables the check.
func HourlyCapReached(count, limit int) bool {
	return limit > 0 && count >= limit
}

// PromoCapReached is the daily equivalent for promotional event types.
func PromoCapReached(count, limit int) bool {
	return limit > 0 && count >= limit
}

// CooldownActive reports whether the channel last delivered within
// cooldown of now.
func CooldownActive(lastSent time.Time, ok bool, cooldown time.Duration, now time.Time) bool {
	if !ok || cooldown <= 0 {
		return false
	}
	return now.Sub(lastSent) < cooldown
}
