package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"webveil/internal/session"
)

// sessionCookieName identifies the browser across requests.
const sessionCookieName = "webveil_sid"

// sessionContextKey is the echo context key the session is stashed under.
const sessionContextKey = "webveil_session"

// Session returns an Echo middleware that attaches a per-browser Session to
// the request context, minting an ID cookie on first contact.
func Session(store session.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var id string
			if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				id = cookie.Value
			} else {
				id = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     sessionCookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			sess := store.Load(id)
			c.Set(sessionContextKey, sess)

			err := next(c)

			store.Save(id, sess)
			return err
		}
	}
}

// SessionFor returns the request's Session. Requests that bypassed the
// session middleware get a throwaway session rather than a nil panic.
func SessionFor(c echo.Context) *session.Session {
	if s, ok := c.Get(sessionContextKey).(*session.Session); ok && s != nil {
		return s
	}
	return session.New()
}
