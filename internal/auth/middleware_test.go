package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// newIdentityTestServer builds an Echo instance with the resolving
// middleware installed and a handler that reports who the request
// resolved as, the way a page would.
func newIdentityTestServer(store SessionStore) *echo.Echo {
	e := echo.New()
	e.Use(ResolveIdentity(NewResolver(store, NewPropagator(time.Hour))))
	e.GET("/", func(c echo.Context) error {
		if profile := CurrentProfile(c); profile != nil {
			return c.String(http.StatusOK, "user:"+profile.Username)
		}
		return c.String(http.StatusOK, "anonymous")
	})
	return e
}

// Two browsers hitting the same process through the full middleware
// chain: the one with a cookie resolves to its user, the one without
// stays anonymous and receives no session cookie.
func TestResolveIdentity_PerRequestScope(t *testing.T) {
	store := &fakeSessionStore{
		getFunc: func(_ context.Context, id string) (*Session, error) {
			if id == "alice-token" {
				return liveSession(id, "alice"), nil
			}
			return nil, apperror.NewNotFound("session not found")
		},
	}
	e := newIdentityTestServer(store)

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "alice-token"})
	recA := httptest.NewRecorder()
	e.ServeHTTP(recA, reqA)

	if body := recA.Body.String(); body != "user:alice" {
		t.Fatalf("expected browser A to resolve as alice, got %q", body)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	recB := httptest.NewRecorder()
	e.ServeHTTP(recB, reqB)

	if body := recB.Body.String(); body != "anonymous" {
		t.Errorf("browser B with no token must be anonymous, got %q", body)
	}
	if cookie := setCookieNamed(recB, sessionCookieName); cookie != nil && cookie.Value != "" {
		t.Errorf("browser B must not receive a session cookie, got %q", cookie.Value)
	}
}

func TestRequireRole(t *testing.T) {
	service := newTestService(t, newFakeRegistry(), &fakeSessionStore{})

	run := func(profile *ProfileSnapshot, required Role) error {
		c, _ := newTestContext(t, "/", "")
		if profile != nil {
			c.Set(contextKeyProfile, profile)
		}
		handler := RequireRole(service, required)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		return handler(c)
	}

	// Anonymous caller on a protected page gets 401.
	err := run(nil, RoleUser)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for anonymous caller, got %v", err)
	}

	// Authenticated but under-ranked caller gets 403.
	err = run(&ProfileSnapshot{Username: "alice", Role: RoleUser}, RoleAdmin)
	if !errors.As(err, &appErr) || appErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for under-ranked caller, got %v", err)
	}

	// Sufficient rank passes.
	if err := run(&ProfileSnapshot{Username: "root", Role: RoleSuperadmin}, RoleAdmin); err != nil {
		t.Errorf("expected superadmin to pass an admin gate, got %v", err)
	}

	// Public pages pass everyone, including anonymous callers.
	if err := run(nil, RolePublic); err != nil {
		t.Errorf("expected public page to pass anonymous caller, got %v", err)
	}
}
