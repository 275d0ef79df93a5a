package httpapi

import (
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/labstack/echo/v4"

	logx "notiprio/pkg/logx"
)

// mountPprof serves net/http/pprof under /debug/pprof. With a token set,
// requests must carry "Authorization: Bearer <token>".
func (s *Server) mountPprof(token string) {
	g := s.e.Group("/debug/pprof", bearerAuth(token))
	g.GET("", func(c echo.Context) error {
		return c.Redirect(http.StatusPermanentRedirect, "/debug/pprof/")
	})
	g.GET("/", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.POST("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
	// Named profiles (heap, goroutine, ...) go through Index.
	g.GET("/:name", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
	s.log.Warn("pprof endpoints enabled", logx.Bool("token_set", token != ""))
}

func bearerAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return func(c echo.Context) error {
			got := []byte(strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization)))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
