package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/middleware"
)

// RegisterRoutes sets up the auth routes on the given Echo instance. Auth
// routes are public (no role required) -- RequireRole is exported
// separately for the dashboard pages to use on their route groups.
//
// POST endpoints are rate-limited to slow brute-force and credential
// stuffing: 10 attempts per IP per minute for login, 5 for register.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.GET("/register", h.RegisterForm)
	e.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))

	// Logout needs no guard: logging out while anonymous is a no-op.
	e.POST("/logout", h.Logout)
}
