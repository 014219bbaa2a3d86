package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	authapi "github.com/framerate-dev/tokenvault/api/echo"
	"github.com/framerate-dev/tokenvault/config"
	"github.com/framerate-dev/tokenvault/log"
	authmw "github.com/framerate-dev/tokenvault/middleware"
)

// NewHTTPServer creates and configures the echo HTTP server carrying the
// session API.
func NewHTTPServer(
	cfg *config.ServerConfig,
	appLogger log.Logger,
	authAPI *authapi.AuthAPI,
	verifier *authmw.TokenVerifier,
	healthCheck func(ctx context.Context) error,
) *http.Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "HTTP request failed", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "HTTP request", fields)
			}
			return err
		}
	})

	authAPI.RegisterRoutes(e, authmw.RequireAuth(verifier))

	e.GET("/healthz", func(c echo.Context) error {
		if err := healthCheck(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
