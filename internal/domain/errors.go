package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInvalidConfig    = errors.New("invalid rule config")
	ErrSnapshotNotFound = errors.New("rule snapshot not found")
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrAdvisorTimeout   = errors.New("advisor timed out")
	ErrAdvisorFailed    = errors.New("advisor failed")
)

// ValidationError reports a malformed event. Nothing is mutated when a
// decide call fails with it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }

// ConfigError reports a rule value rejected at publish time. The previously
// published snapshot stays active.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
