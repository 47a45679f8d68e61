// Package service implements the proxy orchestrator: it resolves the target
// from an inbound request, fetches it, applies the cookie jar and rewrite
// engine to the exchange, and shapes the final response.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"webveil/internal/client"
	"webveil/internal/metrics"
	"webveil/internal/model"
	"webveil/internal/rewrite"
	"webveil/internal/session"
	"webveil/internal/token"
)

// ErrTargetInvalid is returned when the resolved target is missing or not a
// well-formed absolute http(s) URL. No upstream fetch happens in that case.
var ErrTargetInvalid = errors.New("target is not a valid absolute URL")

// forwardableRequestHeaders are the only inbound headers forwarded to the
// target. Accept-Encoding is deliberately absent so the transport negotiates
// (and transparently decodes) compression itself; rewriting needs plaintext.
// Range is absent too: the media branch buffers the whole body and slices it
// locally, so the fetch must always be for the full resource.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"Content-Length",
	"Cache-Control",
}

// ProxyService executes the proxy state machine for one request at a time.
type ProxyService struct {
	upstream *client.Upstream
	codec    *token.Codec
	rewriter *rewrite.Rewriter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(up *client.Upstream, codec *token.Codec, rw *rewrite.Rewriter, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		upstream: up,
		codec:    codec,
		rewriter: rw,
		logger:   logger.With("component", "proxy_service"),
		metrics:  m,
	}
}

// ResolveTarget extracts the target URL from the query: the encrypted u
// parameter when present, else the legacy plain url parameter. Token
// decoding failures surface as token.ErrTokenInvalid; anything that is not
// an absolute http(s) URL surfaces as ErrTargetInvalid.
func (s *ProxyService) ResolveTarget(query url.Values) (*url.URL, error) {
	var raw string
	if tok := query.Get("u"); tok != "" {
		decoded, err := s.codec.Decode(tok)
		if err != nil {
			return nil, err
		}
		raw = decoded
	} else {
		raw = query.Get("url")
	}
	if raw == "" {
		return nil, ErrTargetInvalid
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrTargetInvalid
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrTargetInvalid
	}
	return u, nil
}

// Relay runs the full state machine for one inbound request: resolve the
// target, fetch it with session cookies attached, then branch on content
// type into media streaming, HTML/CSS rewriting, or passthrough. The jar is
// only mutated after a successful fetch.
func (s *ProxyService) Relay(pr *model.ProxyRequest, sess *session.Session) (*model.RelayResult, error) {
	target, err := s.ResolveTarget(pr.Query)
	if err != nil {
		return nil, err
	}
	origin := target.Scheme + "://" + target.Host

	header := s.buildRequestHeader(pr.Header, origin, sess)

	s.logger.Debug("relaying request",
		"method", pr.Method,
		"target_host", target.Host,
	)

	resp, err := s.upstream.Do(pr.Ctx, pr.Method, target.String(), header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("relay to target: %w", err)
	}

	outHeader := s.finalizeHeaders(resp.Header, target, origin, sess)

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "audio/"):
		return s.relayMedia(resp, outHeader, pr.Header.Get("Range"))
	case strings.HasPrefix(contentType, "text/html"):
		return s.relayRewritten(resp, outHeader, target, "html")
	case strings.HasPrefix(contentType, "text/css"):
		return s.relayRewritten(resp, outHeader, target, "css")
	default:
		return &model.RelayResult{
			StatusCode: resp.StatusCode,
			Header:     outHeader,
			Stream:     resp.Body,
		}, nil
	}
}

// buildRequestHeader assembles the outbound header set: a filtered copy of
// the inbound headers, the session's pinned user agent (falling back to the
// browser's), and the jar's Cookie header for the target origin if any.
func (s *ProxyService) buildRequestHeader(src http.Header, origin string, sess *session.Session) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}

	ua := sess.UserAgent
	if ua == "" {
		ua = src.Get("User-Agent")
	}
	if ua != "" {
		dst.Set("User-Agent", ua)
	}

	if cookie, ok := sess.CookieHeader(origin); ok {
		dst.Set("Cookie", cookie)
	}
	return dst
}

// finalizeHeaders applies the response-side contract shared by every branch:
// target cookies move into the jar and never reach the browser, redirects are
// re-encoded as token URLs, the target's content security policy is stripped,
// and range support is advertised.
func (s *ProxyService) finalizeHeaders(src http.Header, target *url.URL, origin string, sess *session.Session) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		dst[key] = vals
	}

	if setCookies := dst.Values("Set-Cookie"); len(setCookies) > 0 {
		sess.RecordCookies(origin, setCookies)
		dst.Del("Set-Cookie")
	}

	if loc := dst.Get("Location"); loc != "" {
		dst.Set("Location", s.rewriteLocation(loc, target, origin))
	}

	dst.Del("Content-Security-Policy")
	dst.Del("Content-Security-Policy-Report-Only")
	dst.Set("Accept-Ranges", "bytes")
	return dst
}

// rewriteLocation absolutizes a redirect target and re-encodes it as a token
// URL. On encoding failure the original value is kept; a broken redirect is
// still better than leaking the target.
func (s *ProxyService) rewriteLocation(loc string, target *url.URL, origin string) string {
	lower := strings.ToLower(loc)
	if !strings.HasPrefix(lower, "http:") && !strings.HasPrefix(lower, "https:") {
		switch {
		case strings.HasPrefix(loc, "//"):
			loc = target.Scheme + ":" + loc
		case strings.HasPrefix(loc, "/"):
			loc = origin + loc
		default:
			loc = origin + "/" + loc
		}
	}
	tok, err := s.codec.Encode(loc)
	if err != nil {
		return loc
	}
	return s.rewriter.ProxyPath() + "?u=" + url.QueryEscape(tok)
}

// relayMedia buffers the media body and, when the browser asked for a byte
// range, serves just that slice with partial-content framing.
func (s *ProxyService) relayMedia(resp *model.UpstreamResponse, header http.Header, rangeHeader string) (*model.RelayResult, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}

	if rangeHeader == "" {
		header.Del("Content-Length")
		return &model.RelayResult{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
	}

	start, end, ok := parseByteRange(rangeHeader, len(body))
	if !ok {
		header.Set("Content-Range", "bytes */"+strconv.Itoa(len(body)))
		return &model.RelayResult{
			StatusCode: http.StatusRequestedRangeNotSatisfiable,
			Header:     header,
		}, nil
	}

	slice := body[start : end+1]
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
	header.Set("Content-Length", strconv.Itoa(len(slice)))
	header.Set("Accept-Ranges", "bytes")
	return &model.RelayResult{
		StatusCode: http.StatusPartialContent,
		Header:     header,
		Body:       slice,
	}, nil
}

// parseByteRange parses a "bytes=start-end" header against a body of the
// given total size. A missing end means total-1.
func parseByteRange(header string, total int) (start, end int, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil || start < 0 {
		return 0, 0, false
	}

	end = total - 1
	if e := strings.TrimSpace(endStr); e != "" {
		end, err = strconv.Atoi(e)
		if err != nil {
			return 0, 0, false
		}
	}
	if end >= total {
		end = total - 1
	}
	if start > end || start >= total {
		return 0, 0, false
	}
	return start, end, true
}

// relayRewritten reads a text body and runs it through the rewrite engine,
// using the target as the base URL for reference resolution.
func (s *ProxyService) relayRewritten(resp *model.UpstreamResponse, header http.Header, target *url.URL, kind string) (*model.RelayResult, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", kind, err)
	}

	var out string
	switch kind {
	case "html":
		out = s.rewriter.RewriteHTML(string(body), target)
	case "css":
		out = s.rewriter.RewriteCSS(string(body), target)
	}

	if s.metrics != nil {
		s.metrics.RewrittenDocuments.WithLabelValues(kind).Inc()
	}

	// The rewritten body has a new length and is always plaintext.
	header.Del("Content-Length")
	header.Del("Content-Encoding")
	return &model.RelayResult{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       []byte(out),
	}, nil
}
