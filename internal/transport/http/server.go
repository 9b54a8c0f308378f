// Package http provides the HTTP server implementation for the kernel.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/metrics"
	"github.com/xiaot623/gogo/kernel/internal/service"
	v1 "github.com/xiaot623/gogo/kernel/internal/transport/http/v1"
	"github.com/xiaot623/gogo/kernel/internal/transport/ws"
)

// NewServer creates and configures the kernel HTTP server: the v1 API,
// Prometheus metrics and, when wsServer is set, the observe websocket.
func NewServer(svc *service.Service, wsServer *ws.Server, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	metrics.Register()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if wsServer != nil {
		e.GET("/v1/observe/ws", wsServer.HandleWebSocket)
	}

	return e
}
