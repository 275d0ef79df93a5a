package dedupe

import (
	"slices"
	"strings"
	"time"
	"unicode"
)

// Profile is a sorted, de-duplicated token set for one event.
type Profile struct {
	EventID string
	Tokens  []string
	At      time.Time
}

// Match is the earliest prior event that crossed the similarity threshold.
type Match struct {
	EventID    string
	Similarity float64
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// Tokens splits text on every rune that is not a letter or digit and
// returns the sorted unique lower-case tokens.
func Tokens(text string, stripStopWords bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if stripStopWords {
			if _, ok := stopWords[f]; ok {
				continue
			}
		}
		out = append(out, f)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Jaccard returns |a∩b| / |a∪b| for two sorted unique token sets.
// Either set empty yields 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, inter := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// FindNearDuplicate scans candidates in ascending time order and returns
// the first whose similarity to tokens reaches threshold.
func FindNearDuplicate(candidates []Profile, tokens []string, threshold float64) (Match, bool) {
	if len(tokens) == 0 {
		return Match{}, false
	}
	for _, c := range candidates {
		if s := Jaccard(c.Tokens, tokens); s >= threshold {
			return Match{EventID: c.EventID, Similarity: s}, true
		}
	}
	return Match{}, false
}
