package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notiprio/internal/domain"
)

func TestHint(t *testing.T) {
	t.Parallel()
	got, err := Hint{}.Enrich(context.Background(), domain.NotificationEvent{EventType: "reminder"}, domain.Reason{})
	if err != nil || got != "ai_hint:reminder" {
		t.Fatalf("Hint = %q, %v", got, err)
	}
}

func TestLimitedRejectsOverBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	inner := Func(func(context.Context, domain.NotificationEvent, domain.Reason) (string, error) {
		calls++
		return "ok", nil
	})
	l := NewLimited(inner, 0.001, 1)
	if _, err := l.Enrich(context.Background(), domain.NotificationEvent{}, domain.Reason{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := l.Enrich(context.Background(), domain.NotificationEvent{}, domain.Reason{}); !errors.Is(err, domain.ErrAdvisorFailed) {
		t.Fatalf("second call: expected ErrAdvisorFailed, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("inner called %d times, want 1", calls)
	}
}

func TestHTTPAdvisor(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Event.EventType == "boom" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(httpResponse{Hint: " looks routine "})
	}))
	defer srv.Close()

	a := NewHTTP(srv.URL, time.Second)
	got, err := a.Enrich(context.Background(), domain.NotificationEvent{EventType: "reminder"}, domain.Reason{Code: domain.ReasonPassed})
	if err != nil || got != "looks routine" {
		t.Fatalf("Enrich = %q, %v", got, err)
	}

	if _, err := a.Enrich(context.Background(), domain.NotificationEvent{EventType: "boom"}, domain.Reason{}); !errors.Is(err, domain.ErrAdvisorFailed) {
		t.Fatalf("expected ErrAdvisorFailed, got %v", err)
	}
}
