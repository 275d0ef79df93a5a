package httpapi

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"notiprio/internal/domain"
)

// AppValidator adapts the shared struct validator to echo. Field names in
// errors are the JSON names.
type AppValidator struct {
	validator *validator.Validate
}

func NewAppValidator() *AppValidator {
	return &AppValidator{validator: domain.Validator()}
}

func (v *AppValidator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ConfigError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
}
