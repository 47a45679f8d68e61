package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"webveil/internal/config"
	"webveil/internal/token"
)

var (
	hasProtocolPattern = regexp.MustCompile(`(?i)^https?://`)
	// bare domain: label.label...tld with a 2+ letter TLD
	looksLikeDomainPattern = regexp.MustCompile(`(?i)^[\w.-]+\.[a-z]{2,}$`)
)

// HomeHandler serves the landing page and turns the url query parameter into
// a token redirect.
type HomeHandler struct {
	cfg    *config.Config
	codec  *token.Codec
	logger *slog.Logger
}

// NewHomeHandler creates a HomeHandler.
func NewHomeHandler(cfg *config.Config, codec *token.Codec, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{
		cfg:    cfg,
		codec:  codec,
		logger: logger.With("component", "home_handler"),
	}
}

// Handle classifies the url parameter as a full URL, a bare domain, or a
// search query, token-encodes the result, and redirects to /proxy. Without
// the parameter it falls through to the static landing page.
func (h *HomeHandler) Handle(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("url"))
	if raw == "" {
		return c.File(filepath.Join(h.cfg.Proxy.StaticDir, "index.html"))
	}

	target := h.classify(raw)

	tok, err := h.codec.Encode(target)
	if err != nil {
		h.logger.Error("encoding target", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not build proxy link")
	}

	return c.Redirect(http.StatusFound, "/proxy?u="+url.QueryEscape(tok))
}

// classify turns free-form input into a fetchable absolute URL: real URLs
// pass through, bare domains get http://, everything else becomes a search.
func (h *HomeHandler) classify(input string) string {
	switch {
	case hasProtocolPattern.MatchString(input):
		return input
	case looksLikeDomainPattern.MatchString(input):
		return "http://" + input
	default:
		return fmt.Sprintf(h.cfg.Proxy.SearchURL, url.QueryEscape(input))
	}
}
