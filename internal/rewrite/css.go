package rewrite

import (
	"net/url"
	"regexp"
	"strings"
)

// cssURLPattern matches url(...) with optional whitespace; quote handling is
// done by hand since the argument may be quoted either way or not at all.
var cssURLPattern = regexp.MustCompile(`(?i)url\(\s*([^)]*?)\s*\)`)

// cssImportPattern matches @import "...", @import '...' and @import url(...).
var cssImportPattern = regexp.MustCompile(`(?i)@import\s+(?:url\()?['"]?([^'")]+)['"]?\)?\s*;`)

// RewriteCSS rewrites url(...) and @import references in a stylesheet.
// Original quoting of url() arguments is preserved; @import statements are
// normalized to @import url('...');.
func (r *Rewriter) RewriteCSS(css string, base *url.URL) string {
	if css == "" {
		return css
	}

	css = cssURLPattern.ReplaceAllStringFunc(css, func(m string) string {
		inner := cssURLPattern.FindStringSubmatch(m)[1]
		quote, ref := splitQuote(inner)
		if isSkippable(ref) {
			return m
		}
		return "url(" + quote + r.RewriteURL(ref, base) + quote + ")"
	})

	css = cssImportPattern.ReplaceAllStringFunc(css, func(m string) string {
		ref := cssImportPattern.FindStringSubmatch(m)[1]
		if isSkippable(ref) {
			return m
		}
		return "@import url('" + r.RewriteURL(ref, base) + "');"
	})

	return css
}

// splitQuote strips a matching leading/trailing quote pair from a url()
// argument and returns the quote character (or "") alongside the bare URL.
func splitQuote(s string) (quote, ref string) {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return string(s[0]), strings.TrimSpace(s[1 : len(s)-1])
	}
	return "", s
}
