// Package session holds per-browser state across proxy requests: a pinned
// user agent and a cookie jar keyed by target origin. Sessions are owned by
// a Store and mutated concurrently by in-flight requests.
package session

import (
	"sort"
	"strings"
	"sync"
)

// Session is the mutable per-browser record. Sub-resource requests for one
// page load hit the same Session concurrently, so the jar is mutex-guarded.
type Session struct {
	mu sync.RWMutex

	// UserAgent, when set, is used for all outbound requests instead of
	// the inbound browser's value.
	UserAgent string

	// jar maps target origin -> cookie name -> cookie value.
	jar map[string]map[string]string
}

// New creates an empty Session.
func New() *Session {
	return &Session{jar: make(map[string]map[string]string)}
}

// RecordCookies stores the name/value pair of each Set-Cookie header value
// under the given origin. Attributes after the first ";" (Path, Expires,
// HttpOnly, ...) are discarded: the jar keeps logical identity cookies only.
// Last write wins per cookie name.
func (s *Session) RecordCookies(origin string, setCookies []string) {
	if len(setCookies) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cookies := s.jar[origin]
	if cookies == nil {
		cookies = make(map[string]string)
		s.jar[origin] = cookies
	}

	for _, sc := range setCookies {
		kv, _, _ := strings.Cut(sc, ";")
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies[name] = strings.TrimSpace(val)
	}
}

// CookieHeader returns the Cookie header value for the given origin as
// "name=value; name=value" in sorted name order. The second return is false
// when no cookies are recorded for the origin; the caller must then omit the
// Cookie header entirely rather than send an empty one.
func (s *Session) CookieHeader(origin string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cookies := s.jar[origin]
	if len(cookies) == 0 {
		return "", false
	}

	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; "), true
}
