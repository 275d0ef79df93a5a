package domain

import "time"

// AuditRecord is the append-only trace of one decide call.
type AuditRecord struct {
	ID                 string           `json:"id"`
	EventID            string           `json:"eventId"`
	UserID             string           `json:"userId"`
	EventType          string           `json:"eventType"`
	Channel            string           `json:"channel"`
	Response           DecisionResponse `json:"response"`
	RulesConfigVersion int64            `json:"rulesConfigVersion"`
	LatencyMs          int64            `json:"latencyMs"`
	AIFallbackUsed     bool             `json:"aiFallbackUsed"`
	RecordedAt         time.Time        `json:"recordedAt"`
}

// HistoryEntry is a compact view of an event kept in a user's rolling history.
type HistoryEntry struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title,omitempty"`
	Verdict   Verdict   `json:"verdict"`
	At        time.Time `json:"at"`
}
