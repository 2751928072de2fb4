// Package http provides the HTTP server of the chat backend.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/hub"
	"github.com/xiaot623/carechat/internal/service"
)

// NewServer creates and configures the HTTP server: the chat API, the
// session endpoints and the live trace feed.
func NewServer(svc *service.Service, h *hub.Hub, cfg *config.ServerConfig, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	handler := NewHandler(svc, logger)
	feed := NewFeed(cfg, h, logger)

	// Register Routes
	handler.RegisterRoutes(e)
	feed.RegisterRoutes(e)

	return e
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	log := logger.With().Str("component", "http").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
