package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// Context keys for storing identity data in Echo context. Pages use these
// keys (via the exported getter functions below) to read the caller's
// profile without reaching into the auth internals.
const (
	contextKeyIdentity  = "auth_identity"
	contextKeyProfile   = "auth_profile"
	contextKeySessionID = "auth_session_id"
)

// ResolveIdentity returns the global middleware that runs session
// discovery before anything else on every page load. A fresh Identity is
// minted for each request -- one server process handles many concurrent
// browsers, and nothing resolved for one caller may ever be visible to
// another. It never blocks anonymous visitors -- it only hydrates context
// so downstream handlers and RequireRole can decide. A store outage
// propagates as a 503 and the request stops before any protected content
// renders.
func ResolveIdentity(resolver *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := NewIdentity()
			c.Set(contextKeyIdentity, identity)

			halted, err := resolver.Resolve(c)
			if err != nil {
				return err
			}
			if halted {
				// The resolver redirected to strip a link token;
				// the response is already written.
				return nil
			}

			if identity.State() == StateAuthenticated {
				c.Set(contextKeyProfile, identity.Profile())
				c.Set(contextKeySessionID, identity.SessionID())
			}
			return next(c)
		}
	}
}

// RequireRole returns route middleware enforcing a minimum role via the
// entitlement gate: 401 for anonymous visitors (the error handler turns
// that into a login redirect), 403 for authenticated users below the
// required level. A public requirement passes everyone.
func RequireRole(service AuthService, required Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if required == RolePublic || required == "" {
				return next(c)
			}

			profile := CurrentProfile(c)
			if profile == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !HasAccess(profile.Role, required) {
				return apperror.NewForbidden("your role does not permit access to this page")
			}
			return next(c)
		}
	}
}

// --- Exported getters for pages ---

// CurrentProfile retrieves the authenticated profile from the Echo
// context. Returns nil if the request is anonymous.
func CurrentProfile(c echo.Context) *ProfileSnapshot {
	profile, ok := c.Get(contextKeyProfile).(*ProfileSnapshot)
	if !ok {
		return nil
	}
	return profile
}

// CurrentSessionID retrieves the resolved session token from the Echo
// context. Returns empty string for anonymous requests. The navigation
// menu uses it to embed the token in sibling-app links.
func CurrentSessionID(c echo.Context) string {
	id, ok := c.Get(contextKeySessionID).(string)
	if !ok {
		return ""
	}
	return id
}

// requestIdentity returns the per-request identity, or nil when the
// resolving middleware has not run on this request.
func requestIdentity(c echo.Context) *Identity {
	identity, ok := c.Get(contextKeyIdentity).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
