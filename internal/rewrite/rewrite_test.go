package rewrite

import (
	"net/url"
	"strings"
	"testing"

	"webveil/internal/token"
)

func newTestRewriter(t *testing.T, injectShim bool) (*Rewriter, *token.Codec) {
	t.Helper()
	codec := token.NewCodec("rewrite-test-secret")
	return New(codec, "", injectShim), codec
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

// decodeProxied extracts the token from a rewritten reference and decodes it
// back to the target URL.
func decodeProxied(t *testing.T, codec *token.Codec, ref string) string {
	t.Helper()
	i := strings.Index(ref, "?u=")
	if i < 0 {
		t.Fatalf("reference %q is not a proxied token URL", ref)
	}
	tok, err := url.QueryUnescape(ref[i+3:])
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	target, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return target
}

func TestRewriteURL_ResolvesRelative(t *testing.T) {
	r, codec := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/dir/page.html")

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"path relative", "img/logo.png", "https://site.test/dir/img/logo.png"},
		{"root relative", "/login", "https://site.test/login"},
		{"absolute", "https://other.test/a", "https://other.test/a"},
		{"protocol relative", "//cdn.test/lib.js", "https://cdn.test/lib.js"},
		{"query only", "?page=2", "https://site.test/dir/page.html?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RewriteURL(tt.ref, base)
			if !strings.HasPrefix(got, "/proxy?u=") {
				t.Fatalf("RewriteURL(%q) = %q, want a /proxy?u= URL", tt.ref, got)
			}
			if target := decodeProxied(t, codec, got); target != tt.want {
				t.Errorf("token decodes to %q, want %q", target, tt.want)
			}
		})
	}
}

func TestRewriteURL_SkipPolicy(t *testing.T) {
	r, _ := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/")

	refs := []string{
		"",
		"#section",
		"javascript:alert(1)",
		"data:image/png;base64,iVBORw0KGgo=",
		"blob:https://site.test/uuid",
		"mailto:a@b.com",
		"tel:+15551234567",
		"about:blank",
		"  #top  ",
	}

	for _, ref := range refs {
		if got := r.RewriteURL(ref, base); got != ref {
			t.Errorf("RewriteURL(%q) = %q, want unchanged", ref, got)
		}
	}
}

func TestRewriteURL_Idempotent(t *testing.T) {
	r, _ := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/")

	once := r.RewriteURL("/page", base)
	twice := r.RewriteURL(once, base)
	if once != twice {
		t.Errorf("second rewrite changed the URL: %q -> %q", once, twice)
	}
}

func TestRewriteURL_MalformedReturnsOriginal(t *testing.T) {
	r, _ := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/")

	ref := "http://%zz%invalid"
	if got := r.RewriteURL(ref, base); got != ref {
		t.Errorf("RewriteURL(%q) = %q, want unchanged", ref, got)
	}
}

func TestRewriteSrcset_PreservesDescriptors(t *testing.T) {
	r, codec := newTestRewriter(t, false)
	base := mustParse(t, "https://x.test/")

	got := r.RewriteSrcset("a.jpg 1x, b.jpg 2x", base)

	parts := strings.Split(got, ", ")
	if len(parts) != 2 {
		t.Fatalf("got %d candidates, want 2: %q", len(parts), got)
	}
	for i, want := range []struct{ target, desc string }{
		{"https://x.test/a.jpg", "1x"},
		{"https://x.test/b.jpg", "2x"},
	} {
		urlPart, desc, ok := strings.Cut(parts[i], " ")
		if !ok {
			t.Fatalf("candidate %q missing descriptor", parts[i])
		}
		if desc != want.desc {
			t.Errorf("candidate %d descriptor = %q, want %q", i, desc, want.desc)
		}
		if target := decodeProxied(t, codec, urlPart); target != want.target {
			t.Errorf("candidate %d decodes to %q, want %q", i, target, want.target)
		}
	}
}

func TestRewriteSrcset_WidthDescriptors(t *testing.T) {
	r, _ := newTestRewriter(t, false)
	base := mustParse(t, "https://x.test/")

	got := r.RewriteSrcset("small.jpg 300w, large.jpg 800w", base)
	if !strings.Contains(got, " 300w") || !strings.Contains(got, " 800w") {
		t.Errorf("width descriptors lost: %q", got)
	}
}

func TestRewriteCSS_URLQuoting(t *testing.T) {
	r, codec := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/css/")

	tests := []struct {
		name  string
		css   string
		quote string
	}{
		{"unquoted", "body{background:url(bg.png)}", ""},
		{"single quoted", "body{background:url('bg.png')}", "'"},
		{"double quoted", `body{background:url("bg.png")}`, `"`},
		{"spaced", "body{background:url( bg.png )}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RewriteCSS(tt.css, base)
			wantPrefix := "url(" + tt.quote + "/proxy?u="
			if !strings.Contains(got, wantPrefix) {
				t.Fatalf("RewriteCSS = %q, want contains %q", got, wantPrefix)
			}
			inner := got[strings.Index(got, "url(")+4 : strings.LastIndex(got, ")")]
			inner = strings.Trim(inner, `'"`)
			if target := decodeProxied(t, codec, inner); target != "https://site.test/css/bg.png" {
				t.Errorf("token decodes to %q, want %q", target, "https://site.test/css/bg.png")
			}
		})
	}
}

func TestRewriteCSS_SkipsDataURLs(t *testing.T) {
	r, _ := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/")

	css := "body{background:url(data:image/png;base64,AAAA)}"
	if got := r.RewriteCSS(css, base); got != css {
		t.Errorf("RewriteCSS altered a data: URL: %q", got)
	}
}

func TestRewriteCSS_ImportNormalized(t *testing.T) {
	r, codec := newTestRewriter(t, false)
	base := mustParse(t, "https://site.test/")

	for _, css := range []string{
		`@import "theme.css";`,
		`@import 'theme.css';`,
		`@import url(theme.css);`,
		`@import url("theme.css");`,
	} {
		got := r.RewriteCSS(css, base)
		if !strings.HasPrefix(got, "@import url('/proxy?u=") || !strings.HasSuffix(got, "');") {
			t.Errorf("RewriteCSS(%q) = %q, want @import url('...'); form", css, got)
			continue
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(got, "@import url('"), "');")
		if target := decodeProxied(t, codec, inner); target != "https://site.test/theme.css" {
			t.Errorf("import decodes to %q, want %q", target, "https://site.test/theme.css")
		}
	}
}
