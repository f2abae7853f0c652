// Package http builds the echo servers for the executor and the coordinator.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/transport/http/api"
	"github.com/xiaot623/deskrelay/internal/ws"
)

// NewCoordinatorServer creates the session management API server.
func NewCoordinatorServer(h *api.Handler, logger *zap.Logger) *echo.Echo {
	e := newEcho(logger.With(zap.String("server", "coordinator")))
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	return e
}

// NewExecutorServer creates the command channel server.
func NewExecutorServer(wsServer *ws.Server, logger *zap.Logger) *echo.Echo {
	e := newEcho(logger.With(zap.String("server", "executor")))

	wsServer.Routes(e)

	return e
}

func newEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())

	return e
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
