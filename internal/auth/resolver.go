package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// SessionLookupStrategy is one tier of session discovery. Strategies only
// find a candidate token; the resolver is responsible for validating it
// against the store. New propagation channels (headers, device handoff)
// slot in as additional strategies.
type SessionLookupStrategy interface {
	// Name labels the tier in logs ("cache", "link", "cookie").
	Name() string

	// Lookup returns a candidate token from this tier, if present.
	Lookup(c echo.Context) (token string, found bool)
}

// cacheLookup returns the token already hydrated into this request's
// identity, typically by a Login earlier in the same request. Identities
// are request-scoped, so this tier can never surface a token that belongs
// to a different caller of the same process.
type cacheLookup struct{}

func (cacheLookup) Name() string { return "cache" }

func (cacheLookup) Lookup(c echo.Context) (string, bool) {
	identity := requestIdentity(c)
	if identity == nil {
		return "", false
	}
	id := identity.SessionID()
	return id, id != ""
}

// linkParamLookup reads the token from the inbound URL, placed there by a
// sibling app's navigation link.
type linkParamLookup struct{}

func (linkParamLookup) Name() string { return "link" }

func (linkParamLookup) Lookup(c echo.Context) (string, bool) {
	token := c.QueryParam(sessionParamName)
	return token, token != ""
}

// cookieLookup reads the token from the long-lived browser cookie.
type cookieLookup struct{}

func (cookieLookup) Name() string { return "cookie" }

func (cookieLookup) Lookup(c echo.Context) (string, bool) {
	token := cookieSessionToken(c)
	return token, token != ""
}

// Resolver discovers the caller's session on each request and hydrates the
// request-scoped identity. Tiers are tried in order, first match wins:
// identity cache, inbound link parameter, cookie. A cached token is
// re-validated against the store every time -- a logout in a sibling
// process or an expiry can invalidate it at any moment.
type Resolver struct {
	store      SessionStore
	propagator *Propagator
	strategies []SessionLookupStrategy
}

// NewResolver creates a resolver with the standard three-tier strategy
// order.
func NewResolver(store SessionStore, propagator *Propagator) *Resolver {
	return &Resolver{
		store:      store,
		propagator: propagator,
		strategies: []SessionLookupStrategy{
			cacheLookup{},
			linkParamLookup{},
			cookieLookup{},
		},
	}
}

// Resolve runs the discovery chain for the current request, hydrating the
// identity stored in the request context (one is created if the resolving
// middleware has not put one there).
//
// On success the identity transitions to Authenticated, the session's
// last_accessed_at is touched (best effort), and the cookie is refreshed.
// If the winning tier was the link parameter, Resolve redirects to the
// same URL with the parameter stripped -- so the token never lingers in
// history, referrers, or bookmarks -- and returns halted=true to tell the
// middleware the response is already written.
//
// If no tier yields a valid session the identity transitions to Anonymous
// and any stale cookie is cleared; that is not an error. A store failure
// is: it surfaces as a 503 AppError so pages fail closed.
func (r *Resolver) Resolve(c echo.Context) (halted bool, err error) {
	identity := requestIdentity(c)
	if identity == nil {
		identity = NewIdentity()
		c.Set(contextKeyIdentity, identity)
	}

	for _, strategy := range r.strategies {
		token, found := strategy.Lookup(c)
		if !found {
			continue
		}

		sess, err := r.store.Get(c.Request().Context(), token)
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == http.StatusNotFound {
				// Stale token in this tier; invalidate it and fall
				// through to the next tier.
				r.discardStale(c, identity, strategy)
				continue
			}
			return false, apperror.NewUnavailable(err)
		}

		identity.setAuthenticated(sess)

		if err := r.store.Touch(c.Request().Context(), sess.ID); err != nil {
			slog.Warn("failed to touch session",
				slog.Any("error", err),
			)
		}

		// Make sure the browser carries the token for the next plain
		// reload, whichever tier produced it this time.
		r.propagator.SetCookie(c, sess.ID)

		if strategy.Name() == "link" {
			return true, r.stripLinkParam(c)
		}
		return false, nil
	}

	identity.setAnonymous()
	if cookieSessionToken(c) != "" {
		r.propagator.ClearCookie(c)
	}
	return false, nil
}

// discardStale drops an invalid token from whichever tier produced it so
// the same dead token isn't retried forever.
func (r *Resolver) discardStale(c echo.Context, identity *Identity, strategy SessionLookupStrategy) {
	switch strategy.Name() {
	case "cache":
		identity.setAnonymous()
	case "cookie":
		r.propagator.ClearCookie(c)
	}
	// A stale link parameter needs no cleanup: it is not stored anywhere
	// on our side, and an anonymous outcome clears the visible URL-less
	// state naturally.
}

// stripLinkParam redirects to the current URL minus the session parameter.
func (r *Resolver) stripLinkParam(c echo.Context) error {
	u := *c.Request().URL
	q := u.Query()
	q.Del(sessionParamName)
	u.RawQuery = q.Encode()

	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	if target == "" {
		target = "/"
	}
	return c.Redirect(http.StatusSeeOther, target)
}
