// Package middleware provides HTTP middleware for Foyer.
// ratelimit.go implements a per-IP rate limiter using a sliding window
// counter stored in memory. The limiter is per process: each dashboard
// throttles its own login and register endpoints independently, which is
// the intended scope since each form only submits to its own process.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// rateLimitEntry tracks request counts for a single IP within a time window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
	warned      bool
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window duration. Over-limit requests get a 429 with a
// Retry-After header pointing at the end of the current window.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	var mu sync.Mutex
	entries := make(map[string]*rateLimitEntry)

	// Background cleanup of expired entries every minute.
	go func() {
		for {
			time.Sleep(time.Minute)
			mu.Lock()
			now := time.Now()
			for ip, entry := range entries {
				if now.Sub(entry.windowStart) > window*2 {
					delete(entries, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			now := time.Now()

			mu.Lock()
			entry, exists := entries[ip]
			if !exists || now.Sub(entry.windowStart) > window {
				entries[ip] = &rateLimitEntry{count: 1, windowStart: now}
				mu.Unlock()
				return next(c)
			}

			entry.count++
			if entry.count > maxRequests {
				retryAfter := entry.windowStart.Add(window).Sub(now)
				if retryAfter < time.Second {
					retryAfter = time.Second
				}
				// One log line per window per IP, not one per rejected
				// request -- a credential-stuffing run would flood the
				// stream otherwise.
				if !entry.warned {
					entry.warned = true
					slog.Warn("rate limit exceeded",
						slog.String("remote_ip", ip),
						slog.String("path", c.Request().URL.Path),
					)
				}
				mu.Unlock()

				c.Response().Header().Set("Retry-After",
					strconv.Itoa(int(retryAfter.Seconds())))
				return c.String(http.StatusTooManyRequests,
					"Too many attempts. Please try again later.")
			}
			mu.Unlock()
			return next(c)
		}
	}
}
