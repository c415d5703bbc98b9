// Package main is the entry point for one Foyer dashboard process. It
// loads configuration, opens the shared session database and credential
// file, wires the auth layer, and starts the HTTP server.
//
// Every front end in the fleet runs this same binary; APP_NAME, PORT, and
// SIBLING_APPS distinguish processes. All processes must share
// SESSION_DB_PATH and CREDENTIALS_PATH for single sign-on to work.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foyerhq/foyer/internal/app"
	"github.com/foyerhq/foyer/internal/auth"
	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting Foyer dashboard",
		slog.String("app", cfg.AppName),
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	// --- Open shared session database ---
	db, err := database.NewSQLite(cfg.SessionDBPath)
	if err != nil {
		slog.Error("failed to open session database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("session database ready", slog.String("path", cfg.SessionDBPath))

	// --- Load credential registry ---
	registry, err := auth.NewFileRegistry(cfg.CredentialsPath)
	if err != nil {
		slog.Error("failed to load credential file", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Create Application ---
	application := app.New(cfg, db, registry)
	application.RegisterRoutes()

	// Periodic expired-session sweep; lazy deletion on lookup covers the
	// gaps between ticks.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	application.StartSessionSweep(sweepCtx)

	// --- Graceful Shutdown ---
	// Listen for interrupt/term signals to drain connections cleanly.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")
		stopSweep()

		// Give in-flight requests 10 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown, which is expected.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. The app name is attached to every entry so
// one aggregated stream can tell the fleet's processes apart.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler).With(slog.String("app", cfg.AppName)))
}
