// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
//
// Every Foyer dashboard runs the same binary; APP_NAME and PORT are the
// only settings that usually differ between sibling processes. The shared
// session database and credential file paths must point at the same files
// for every process or single sign-on breaks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// AppName identifies this front-end process in logs and page titles
	// (e.g. "books", "finance", "habits").
	AppName string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of this front end.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// SessionDBPath is the shared SQLite file holding active sessions.
	// Every sibling process must point at the same file.
	SessionDBPath string

	// CredentialsPath is the YAML file holding registered user credentials.
	CredentialsPath string

	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration

	// SweepInterval is how often this process runs the expired-session
	// sweep. Safe for every sibling to run it on its own schedule.
	SweepInterval time.Duration

	// Siblings lists the other front ends for the cross-app navigation
	// menu, in display order.
	Siblings []SiblingApp
}

// SiblingApp is one entry in the cross-app navigation menu.
type SiblingApp struct {
	Name string
	URL  string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if a value is present but malformed.
func Load() (*Config, error) {
	siblings, err := parseSiblings(getEnv("SIBLING_APPS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:             getEnv("ENV", "development"),
		AppName:         getEnv("APP_NAME", "foyer"),
		Port:            getEnvInt("PORT", 8080),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:        getEnv("LOG_LEVEL", "debug"),
		SessionDBPath:   getEnv("SESSION_DB_PATH", "./foyer-sessions.db"),
		CredentialsPath: getEnv("CREDENTIALS_PATH", "./credentials.yaml"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 720*time.Hour),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Hour),
		Siblings:        siblings,
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// parseSiblings parses the SIBLING_APPS value: comma-separated name=url
// pairs, e.g. "books=http://localhost:8081,finance=http://localhost:8082".
func parseSiblings(raw string) ([]SiblingApp, error) {
	if raw == "" {
		return nil, nil
	}

	var siblings []SiblingApp
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("SIBLING_APPS: malformed entry %q (want name=url)", pair)
		}
		siblings = append(siblings, SiblingApp{Name: name, URL: url})
	}
	return siblings, nil
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
