// Package app is the application bootstrap and dependency injection root
// for one Foyer front-end process. It creates and holds all shared
// infrastructure (session DB handle, credential registry, Echo instance)
// and wires the auth layer under the dashboard routes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
	"github.com/foyerhq/foyer/internal/auth"
	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the shared SQLite session database handle.
	DB *sql.DB

	// Registry is the credential file store.
	Registry auth.CredentialRegistry

	// Store is the cross-process session store.
	Store auth.SessionStore

	// Service is the auth service consumed by every page.
	Service auth.AuthService

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	resolver   *auth.Resolver
	propagator *auth.Propagator
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, registry auth.CredentialRegistry) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Trust forwarding headers only from the usual private ranges where a
	// fleet-fronting reverse proxy lives, so c.RealIP() is the client.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	propagator := auth.NewPropagator(cfg.SessionTTL)
	store := auth.NewSessionStore(db, cfg.SessionTTL)
	resolver := auth.NewResolver(store, propagator)
	service := auth.NewAuthService(registry, store, propagator)

	app := &App{
		Config:     cfg,
		DB:         db,
		Registry:   registry,
		Store:      store,
		Service:    service,
		Echo:       e,
		resolver:   resolver,
		propagator: propagator,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first; identity resolution runs
// last so every handler below it sees a settled identity.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// Session discovery -- runs before any page on every request.
	a.Echo.Use(auth.ResolveIdentity(a.resolver))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses.
//
// 401 redirects browsers to the login page. 503 renders the
// "authentication subsystem unavailable" page: when the shared store is
// down, pages stop rather than fail open.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	// SafeCode/SafeMessage only ever expose what an AppError carries;
	// anything else collapses to a generic 500.
	code := apperror.SafeCode(err)
	message := apperror.SafeMessage(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Echo's built-in HTTP errors (e.g., 404 from the router) carry
		// their own safe message.
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	// Browser 401 -- redirect to login page.
	if code == http.StatusUnauthorized {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	if code == http.StatusServiceUnavailable {
		c.HTML(code, errorPage(code, "Authentication unavailable",
			"The authentication subsystem is unavailable. Protected content cannot be shown. Please try again later."))
		return
	}

	c.HTML(code, errorPage(code, http.StatusText(code), message))
}

// errorPage renders the minimal shared error document.
func errorPage(code int, title, message string) string {
	return fmt.Sprintf(`<!doctype html>
<html><head><meta charset="utf-8"><title>%d %s</title></head>
<body><h1>%d %s</h1><p>%s</p><p><a href="/">Home</a></p></body></html>`,
		code, html.EscapeString(title), code, html.EscapeString(title),
		html.EscapeString(message))
}

// StartSessionSweep launches the periodic expired-session sweep. Every
// sibling process runs its own sweep on its own schedule; the DELETE is
// idempotent so overlapping sweeps are harmless. Lazy deletion on lookup
// handles anything between sweeps.
func (a *App) StartSessionSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.Config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := a.Store.SweepExpired(ctx)
				if err != nil {
					slog.Warn("session sweep failed", slog.Any("error", err))
					continue
				}
				if n > 0 {
					slog.Info("swept expired sessions", slog.Int64("count", n))
				}
			}
		}
	}()
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting dashboard",
		slog.String("app", a.Config.AppName),
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
