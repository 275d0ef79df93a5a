// Package dedupe implements exact and near duplicate detection over a
// user's recent events. Everything here is pure; the state store supplies
// the history.
package dedupe

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
	"time"

	"notiprio/internal/domain"
)

// Fingerprint identifies an event for exact duplicate checks. An explicit
// dedupe key wins; otherwise the key is a hash of the identifying fields
// and the normalized text.
func Fingerprint(ev domain.NotificationEvent) string {
	if k := strings.TrimSpace(ev.DedupeKey); k != "" {
		return "k:" + k
	}
	h := fnv.New64a()
	for _, part := range []string{
		ev.UserID,
		ev.EventType,
		ev.Channel,
		NormalizeText(ev.Text()),
		ev.Source,
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return "h:" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeText lower-cases s and collapses whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FingerprintLookup returns when a fingerprint was last seen for a user.
type FingerprintLookup interface {
	LookupFingerprint(fp string) (time.Time, bool)
}

// IsExactDuplicate reports whether fp was seen within window of now.
func IsExactDuplicate(lookup FingerprintLookup, fp string, window time.Duration, now time.Time) bool {
	if window <= 0 {
		return false
	}
	seen, ok := lookup.LookupFingerprint(fp)
	if !ok {
		return false
	}
	return now.Sub(seen) < window
}
