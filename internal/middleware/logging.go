// Package middleware provides HTTP middleware for the Foyer Echo server.
// Middleware is applied globally (all routes) or per-route group depending
// on the middleware type. See internal/app for registration.
package middleware

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

// sessionParam is the query parameter carrying session tokens on cross-app
// links. The request logger must never write its value to the log stream.
const sessionParam = "sessionId"

// RequestLogger returns middleware that logs every HTTP request with
// structured fields: method, path, status, latency, and remote IP.
// Uses Go's built-in slog for structured logging.
//
// Session tokens are scrubbed: the sessionId query value is replaced with
// a placeholder, and only the presence of the session cookie is logged,
// never its value. Health probes are skipped to keep the stream readable.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			if req.URL.Path == "/healthz" {
				return err
			}

			// Log after the request completes so we have the status code.
			latency := time.Since(start)
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", latency),
				slog.String("remote_ip", c.RealIP()),
			}

			if req.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", scrubQuery(req.URL.RawQuery)))
			}

			// Whether the caller presented a session cookie. Useful when
			// chasing resolution problems across sibling processes.
			_, cookieErr := c.Cookie("foyer_session")
			attrs = append(attrs, slog.Bool("session_cookie", cookieErr == nil))

			// Log at different levels based on status code.
			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request",
				attrs...,
			)

			return err
		}
	}
}

// scrubQuery replaces any session token in a raw query string with a
// placeholder before it reaches the log stream.
func scrubQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable query strings are dropped rather than logged raw.
		return "(unparseable)"
	}
	if values.Has(sessionParam) {
		values.Set(sessionParam, "[redacted]")
	}
	return values.Encode()
}
