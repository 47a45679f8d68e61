// Package rewrite transforms HTML and CSS so that every embedded reference
// re-enters the proxy as an opaque token URL. Rewriting is best-effort by
// contract: hostile or malformed input degrades to the original text, never
// to an error that would fail the whole response.
package rewrite

import (
	"net/url"
	"strings"

	"webveil/internal/token"
)

// TitleMarker replaces the document title of every proxied page.
const TitleMarker = "webveil - viewing"

// DefaultProxyPath is the proxy endpoint references are rewritten to.
const DefaultProxyPath = "/proxy"

// Rewriter rewrites embedded references through the token codec.
type Rewriter struct {
	codec      *token.Codec
	proxyPath  string
	injectShim bool
}

// New creates a Rewriter targeting proxyPath (empty means DefaultProxyPath).
// When injectShim is true, rewritten HTML gets the client-side compatibility
// shim prepended to <head>.
func New(codec *token.Codec, proxyPath string, injectShim bool) *Rewriter {
	if proxyPath == "" {
		proxyPath = DefaultProxyPath
	}
	return &Rewriter{codec: codec, proxyPath: proxyPath, injectShim: injectShim}
}

// ProxyPath returns the endpoint path rewritten references point at.
func (r *Rewriter) ProxyPath() string {
	return r.proxyPath
}

// skipPrefixes are reference schemes the browser resolves without the network
// or that must stay untouched for the page to keep working.
var skipPrefixes = []string{
	"data:", "blob:", "javascript:", "mailto:", "tel:", "about:",
}

// isSkippable reports whether a reference must be left untouched: empty,
// fragment-only, or one of the non-fetch schemes.
func isSkippable(ref string) bool {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// isProxied reports whether a reference already points at the token endpoint,
// so re-rewriting would double-wrap it.
func (r *Rewriter) isProxied(ref string) bool {
	return strings.Contains(ref, r.proxyPath+"?u=")
}

// RewriteURL converts one reference into a proxied token URL, resolving it
// against base first. Skippable and already-proxied references, as well as
// anything that fails to resolve or encode, come back unchanged.
func (r *Rewriter) RewriteURL(ref string, base *url.URL) string {
	if isSkippable(ref) || r.isProxied(ref) {
		return ref
	}

	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	abs := parsed
	if base != nil {
		abs = base.ResolveReference(parsed)
	}

	tok, err := r.codec.Encode(abs.String())
	if err != nil {
		return ref
	}
	return r.proxyPath + "?u=" + url.QueryEscape(tok)
}

// RewriteSrcset rewrites each candidate URL in a srcset value, preserving
// width/density descriptors and the comma-separated structure.
func (r *Rewriter) RewriteSrcset(srcset string, base *url.URL) string {
	if srcset == "" {
		return srcset
	}

	items := strings.Split(srcset, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			out = append(out, "")
			continue
		}
		parts := strings.Fields(trimmed)
		rewritten := r.RewriteURL(parts[0], base)
		if len(parts) > 1 {
			rewritten += " " + strings.Join(parts[1:], " ")
		}
		out = append(out, rewritten)
	}
	return strings.Join(out, ", ")
}
