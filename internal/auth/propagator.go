package auth

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

// sessionCookieName is the HTTP cookie used to store the session token.
// Shared by every dashboard on the same host/domain, which is what makes a
// plain page reload on a sibling app resolve the same session.
const sessionCookieName = "foyer_session"

// sessionParamName is the query parameter carrying the token on cross-app
// navigation links. Sibling apps on different ports don't share cookies in
// every deployment, so the nav menu carries the token in the link itself;
// the receiving app immediately moves it into its own cookie and strips it
// from the visible URL.
const sessionParamName = "sessionId"

// Propagator pushes the session token into the two outbound channels: the
// cross-app navigation links and the long-lived browser cookie.
type Propagator struct {
	ttl time.Duration
}

// NewPropagator creates a propagator whose cookies live exactly as long as
// the underlying sessions.
func NewPropagator(ttl time.Duration) *Propagator {
	return &Propagator{ttl: ttl}
}

// EmbedInLink appends the session token to a sibling-app URL as a query
// parameter. Links for unauthenticated visitors (empty token) are returned
// untouched, as are URLs that fail to parse.
func (p *Propagator) EmbedInLink(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(sessionParamName, token)
	u.RawQuery = q.Encode()
	return u.String()
}

// SetCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure if behind TLS, and SameSite=Lax.
func (p *Propagator) SetCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(p.ttl / time.Second),
	})
}

// ClearCookie removes the session cookie by setting MaxAge to -1.
func (p *Propagator) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// cookieSessionToken reads the session token from the request cookie.
func cookieSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
