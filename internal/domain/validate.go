package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. The HTTP adapter reuses it
// so request binding and the engine agree on what a valid event is.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// ValidateEvent checks required fields and timestamp sanity. maxSkew bounds
// how far createdAt may be ahead of now; 0 disables that bound.
func ValidateEvent(ev NotificationEvent, now time.Time, maxSkew time.Duration) error {
	if err := Validator().Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	for _, f := range [...]struct{ name, v string }{
		{"userId", ev.UserID},
		{"channel", ev.Channel},
		{"eventType", ev.EventType},
	} {
		if strings.TrimSpace(f.v) == "" {
			return &ValidationError{Field: f.name, Message: "must not be blank"}
		}
	}
	if maxSkew > 0 && ev.CreatedAt.After(now.Add(maxSkew)) {
		return &ValidationError{Field: "createdAt", Message: "is in the future"}
	}
	if ev.ExpiresAt != nil && ev.ExpiresAt.IsZero() {
		return &ValidationError{Field: "expiresAt", Message: "must be a valid timestamp"}
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
