// Package domain holds the data model shared by the decision engine, the
// state store and the transport adapters.
package domain

import "time"

// NotificationEvent is a single notification submitted for a decision.
// It is immutable once accepted; history and audit entries refer to it by ID.
type NotificationEvent struct {
	ID           string            `json:"id" validate:"required,max=256"`
	UserID       string            `json:"userId" validate:"required,max=256"`
	Channel      string            `json:"channel" validate:"required,max=64"`
	EventType    string            `json:"eventType" validate:"required,max=128"`
	Title        string            `json:"title,omitempty" validate:"max=1024"`
	Message      string            `json:"message,omitempty" validate:"max=8192"`
	Source       string            `json:"source,omitempty" validate:"max=256"`
	CreatedAt    time.Time         `json:"createdAt" validate:"required"`
	ExpiresAt    *time.Time        `json:"expiresAt,omitempty"`
	DedupeKey    string            `json:"dedupeKey,omitempty" validate:"max=512"`
	Urgent       bool              `json:"urgent,omitempty"`
	PriorityHint string            `json:"priorityHint,omitempty" validate:"omitempty,oneof=low normal high"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Text is the combined title and message used for similarity checks.
func (e NotificationEvent) Text() string {
	if e.Title == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Title
	}
	return e.Title + " " + e.Message
}
