package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Error APIError `json:"error"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logx.String("path", c.Path()),
			logx.Int("status", status),
			logx.Err(err),
		)
	}
	if jsonErr := c.JSON(status, errorBody{Error: apiErr}); jsonErr != nil {
		s.log.Error("failed to send error response", logx.Err(jsonErr))
	}
}

func mapError(err error) (int, APIError) {
	var (
		echoErr *echo.HTTPError
		vErr    *domain.ValidationError
		cErr    *domain.ConfigError
	)
	switch {
	case errors.As(err, &echoErr):
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{Code: http.StatusText(echoErr.Code), Message: msg}
	case errors.As(err, &vErr):
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "The event is invalid",
			Details: []FieldError{{Field: vErr.Field, Message: vErr.Message}},
		}
	case errors.As(err, &cErr):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_config",
			Message: "The rule configuration is invalid",
			Details: []FieldError{{Field: cErr.Field, Message: cErr.Message}},
		}
	case errors.Is(err, domain.ErrInvalidEvent), errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest, APIError{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound, APIError{Code: "snapshot_not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, APIError{Code: "store_unavailable", Message: "The state store is unavailable"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, APIError{Code: "timeout", Message: "The request did not complete in time"}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "An unexpected error occurred"}
	}
}
