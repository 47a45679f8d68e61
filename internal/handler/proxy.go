package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"webveil/internal/middleware"
	"webveil/internal/model"
	"webveil/internal/service"
	"webveil/internal/token"
)

// ProxyHandler executes the proxy state machine for /proxy requests.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle resolves the target, relays the exchange, and writes the shaped
// response. Rewritten documents are written whole; everything else streams.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.URL.Query().Get("u") == "" && req.URL.Query().Get("url") != "" {
		// Legacy passthrough: kept for compatibility, but the target is
		// visible in cleartext and the link never expires.
		h.logger.Warn("legacy plaintext url parameter used",
			"remote_ip", c.RealIP(),
		)
	}

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Query:  req.URL.Query(),
		Header: req.Header,
		Body:   req.Body,
	}

	res, err := h.service.Relay(pr, middleware.SessionFor(c))
	if err != nil {
		return h.mapError(c, err)
	}

	for key, vals := range res.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(res.StatusCode)

	if res.Stream != nil {
		defer func() { _ = res.Stream.Close() }()
		// If the copy fails mid-stream (client disconnect, network error)
		// the status has already been sent; the client sees a truncated
		// body. Inherent to streaming proxies, so just log it.
		if _, err := io.Copy(c.Response(), res.Stream); err != nil {
			h.logger.Error("streaming response body", "err", err)
		}
		return nil
	}

	if _, err := c.Response().Write(res.Body); err != nil {
		h.logger.Error("writing response body", "err", err)
	}
	return nil
}

// mapError converts relay failures into fixed, non-leaking JSON responses.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, token.ErrTokenInvalid) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid or expired proxy link",
		})
	}

	if errors.Is(err, service.ErrTargetInvalid) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "target is not a valid URL",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "target request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "target host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "target connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "target request failed",
	})
}
