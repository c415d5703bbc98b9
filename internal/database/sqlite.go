// Package database provides connection setup for the shared SQLite session
// store. The connection pool is created once at startup and shared across
// the application via dependency injection. This package owns the connection
// lifecycle (open, configure, ping, migrate, close).
//
// The session database is the only piece of infrastructure shared between
// sibling dashboard processes. It is opened in WAL mode with a busy timeout
// so any number of independent processes can read and write concurrently;
// correctness relies on SQLite's per-statement atomicity, not on any
// application-level locking.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	// SQLite driver -- imported for side effect of registering the driver.
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (creating if necessary) the shared session database at
// the given path. It configures WAL journaling and a busy timeout so
// concurrent sibling processes back off instead of failing, then pings to
// verify the file is usable before returning.
func NewSQLite(path string) (*sql.DB, error) {
	// SQLite creates the file on first write, but creating it up front
	// surfaces permission problems at startup instead of on first login.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("creating session database file: %w", err)
		}
		f.Close()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
		url.PathEscape(path))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite connection: %w", err)
	}

	// A small pool is plenty: operations are single statements and SQLite
	// serializes writers anyway. Idle connections keep the WAL file warm.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	return db, nil
}
