package app

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/auth"
)

// RegisterRoutes sets up all routes for this front end: the auth pages,
// the health check, and the dashboard pages. The dashboard pages here are
// deliberately thin stand-ins for the real business screens -- what they
// demonstrate is the page boundary: read identity once near the top of the
// render path, gate on role, and build sibling links through the
// propagator.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Auth pages (login, register, logout).
	auth.RegisterRoutes(e, auth.NewHandler(a.Service, a.Config.AppName))

	// Health check endpoint for container health monitoring. Reports the
	// shared session store's reachability so an unhealthy process is
	// restarted before users see 503s.
	e.GET("/healthz", func(c echo.Context) error {
		if err := a.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "session_store": "unreachable",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Home page -- public, shows login state.
	e.GET("/", a.homePage)

	// Demo protected pages at two entitlement levels.
	e.GET("/reports", a.reportsPage, auth.RequireRole(a.Service, auth.RoleSubscriber))
	e.GET("/admin", a.adminPage, auth.RequireRole(a.Service, auth.RoleAdmin))
}

// homePage renders the landing page for this dashboard.
func (a *App) homePage(c echo.Context) error {
	var body strings.Builder
	fmt.Fprintf(&body, "<h1>%s</h1>", html.EscapeString(a.Config.AppName))
	body.WriteString(a.navBar(c))

	// Page boundary contract: read identity once, near the top.
	if a.Service.IsAuthenticated(c) {
		user := a.Service.CurrentUser(c)
		fmt.Fprintf(&body,
			`<p>Signed in as <strong>%s</strong> (%s, %s/%s).</p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>`,
			html.EscapeString(user.DisplayName), html.EscapeString(string(user.Role)),
			html.EscapeString(user.SubscriptionTier), html.EscapeString(user.SubscriptionStatus))
	} else {
		body.WriteString(`<p>You are browsing anonymously. <a href="/login">Sign in</a></p>`)
	}

	return c.HTML(http.StatusOK, pageShell(a.Config.AppName, body.String()))
}

// reportsPage is a placeholder for a subscriber-level business screen.
// RequireRole has already verified this request carries a profile.
func (a *App) reportsPage(c echo.Context) error {
	user := a.Service.CurrentUser(c)
	body := fmt.Sprintf("<h1>Reports</h1>%s<p>Subscriber content for %s.</p>",
		a.navBar(c), html.EscapeString(user.DisplayName))
	return c.HTML(http.StatusOK, pageShell("Reports", body))
}

// adminPage is a placeholder for an admin-level business screen.
func (a *App) adminPage(c echo.Context) error {
	user := a.Service.CurrentUser(c)
	body := fmt.Sprintf("<h1>Administration</h1>%s<p>Admin content for %s.</p>",
		a.navBar(c), html.EscapeString(user.DisplayName))
	return c.HTML(http.StatusOK, pageShell("Administration", body))
}

// navBar builds the cross-app navigation menu. Sibling links pass through
// the propagator, which appends the session token only for authenticated
// visitors -- this is the channel that carries a login from one process to
// another.
func (a *App) navBar(c echo.Context) string {
	if len(a.Config.Siblings) == 0 {
		return ""
	}

	token := auth.CurrentSessionID(c)

	var b strings.Builder
	b.WriteString("<nav>")
	for i, sibling := range a.Config.Siblings {
		if i > 0 {
			b.WriteString(" | ")
		}
		link := a.propagator.EmbedInLink(sibling.URL, token)
		fmt.Fprintf(&b, `<a href="%s">%s</a>`,
			html.EscapeString(link), html.EscapeString(sibling.Name))
	}
	b.WriteString("</nav>")
	return b.String()
}

// pageShell wraps body in the minimal shared document shell.
func pageShell(title, body string) string {
	return fmt.Sprintf(`<!doctype html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body>%s</body></html>`, html.EscapeString(title), body)
}
