package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notiprio/internal/domain"
)

// HTTP asks a remote service for a hint. The request body is
// {"event": ..., "reason": ...}; the response is {"hint": "..."}.
type HTTP struct {
	Endpoint string
	Client   *http.Client
	Header   http.Header
}

func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HTTP{
		Endpoint: strings.TrimSpace(endpoint),
		Client:   &http.Client{Timeout: timeout},
		Header:   http.Header{},
	}
}

type httpRequest struct {
	Event  domain.NotificationEvent `json:"event"`
	Reason domain.Reason            `json:"reason"`
}

type httpResponse struct {
	Hint string `json:"hint"`
}

func (h *HTTP) Enrich(ctx context.Context, ev domain.NotificationEvent, reason domain.Reason) (string, error) {
	body, err := json.Marshal(httpRequest{Event: ev, Reason: reason})
	if err != nil {
		return "", fmt.Errorf("encode advisor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("advisor returned %s: %w", resp.Status, domain.ErrAdvisorFailed)
	}
	var out httpResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode advisor response: %w", err)
	}
	return strings.TrimSpace(out.Hint), nil
}
