// Package httpapi exposes the decision engine as a JSON API over echo.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"notiprio/internal/config"
	"notiprio/internal/domain"
	"notiprio/internal/metrics"
	"notiprio/internal/rules"
	logx "notiprio/pkg/logx"
)

// Engine is the subset of *engine.Engine the API serves.
type Engine interface {
	Decide(ctx context.Context, ev domain.NotificationEvent) (domain.DecisionResponse, error)
	DecideWith(ctx context.Context, ev domain.NotificationEvent, version int64) (domain.DecisionResponse, error)
	History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error)
	RecentEvents(userID string, window time.Duration) []domain.HistoryEntry
	Rules() rules.Config
	SetRules(cfg rules.Config) (int64, error)
	Metrics() metrics.Snapshot
}

type Server struct {
	e   *echo.Echo
	eng Engine
	cfg config.HTTPSettings
	log logx.Logger

	// newID fills missing event ids.
	newID func() string
}

func New(eng Engine, cfg config.HTTPSettings, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		e:     echo.New(),
		eng:   eng,
		cfg:   cfg,
		log:   log.With(logx.String("comp", "http")),
		newID: newEventID,
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Validator = NewAppValidator()
	s.e.HTTPErrorHandler = s.handleError

	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		s.e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	s.e.Use(s.requestLogger())

	s.routes()
	if cfg.Pprof {
		s.mountPprof(cfg.PprofToken)
	}
	return s
}

func (s *Server) routes() {
	s.e.GET("/health", s.health)

	v1 := s.e.Group("/v1")
	v1.POST("/notifications/decide", s.decide)
	v1.GET("/rules", s.getRules)
	v1.PUT("/rules", s.putRules)
	v1.POST("/rules", s.putRules)
	v1.GET("/users/:id/history", s.history)
	v1.GET("/metrics", s.metrics)
}

// Handler returns the router; tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.e,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	start := time.Now()
	err := srv.Shutdown(sctx)
	s.log.Info("http stopped", logx.Duration("took", time.Since(start)), logx.Err(err))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.log.Debug("http request",
				logx.String("method", c.Request().Method),
				logx.String("path", c.Path()),
				logx.Int("status", c.Response().Status),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}
