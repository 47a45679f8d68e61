package handler

import (
	"github.com/labstack/echo/v4"

	"webveil/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, home *HomeHandler, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any("/proxy", proxy.Handle)

	e.GET("/", home.Handle)
	e.Static("/", cfg.Proxy.StaticDir)
}
