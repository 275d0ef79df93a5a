package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"notiprio/internal/config"
	"notiprio/internal/domain"
	"notiprio/internal/rules"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

func newEventID() string { return uuid.NewString() }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// decide does not run the echo validator: the engine validates events
// itself so rejections show up in its counters.
func (s *Server) decide(c echo.Context) error {
	var ev domain.NotificationEvent
	if err := c.Bind(&ev); err != nil {
		return err
	}
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = s.newID()
	}

	ctx := c.Request().Context()
	var (
		resp domain.DecisionResponse
		err  error
	)
	if raw := c.QueryParam("snapshot"); raw != "" {
		version, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || version <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "snapshot must be a positive integer")
		}
		resp, err = s.eng.DecideWith(ctx, ev, version)
	} else {
		resp, err = s.eng.Decide(ctx, ev)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, decideResponse{EventID: ev.ID, DecisionResponse: resp})
}

type decideResponse struct {
	EventID string `json:"eventId"`
	domain.DecisionResponse
}

type rulesResponse struct {
	Version int64              `json:"version"`
	Rules   config.RulesConfig `json:"rules"`
}

func (s *Server) getRules(c echo.Context) error {
	cur := s.eng.Rules()
	return c.JSON(http.StatusOK, rulesResponse{Version: cur.Version, Rules: config.FromRules(cur)})
}

// putRules replaces the active rules. Omitted fields take the stock
// defaults, not the current values.
func (s *Server) putRules(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	var rc config.RulesConfig
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rules body: "+err.Error())
	}
	if err := c.Validate(&rc); err != nil {
		return err
	}
	cfg, err := rc.ToRules()
	if err != nil {
		return err
	}
	version, err := s.eng.SetRules(cfg)
	if err != nil {
		return err
	}
	cfg.Version = version
	return c.JSON(http.StatusOK, rulesResponse{Version: version, Rules: config.FromRules(cfg)})
}

type historyResponse struct {
	UserID         string                `json:"userId"`
	LastHourEvents []domain.HistoryEntry `json:"lastHourEvents"`
	AuditRecords   []domain.AuditRecord  `json:"auditRecords"`
}

func (s *Server) history(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
	}
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.eng.History(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	events := s.eng.RecentEvents(userID, rules.HourWindow)
	if records == nil {
		records = []domain.AuditRecord{}
	}
	if events == nil {
		events = []domain.HistoryEntry{}
	}
	return c.JSON(http.StatusOK, historyResponse{UserID: userID, LastHourEvents: events, AuditRecords: records})
}

func (s *Server) metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.eng.Metrics())
}
