package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foyerhq/foyer/internal/apperror"
)

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters. At that
// entropy a collision with an existing row is treated as impossible and
// is not re-checked on insert.
const sessionTokenBytes = 32

// SessionStore defines the data access contract for the shared session
// table. Implementations are used concurrently by an unbounded number of
// independent OS processes; every method must execute as a single atomic
// statement rather than a read-then-write sequence, so two processes
// touching the same row can never half-apply each other's updates.
type SessionStore interface {
	// Create mints a new session for username with the given profile
	// snapshot and the store's TTL, returning the opaque token.
	Create(ctx context.Context, snapshot ProfileSnapshot) (string, error)

	// Get returns the session for the token. A row found past its expiry
	// is deleted as a side effect and reported as not-found (lazy
	// deletion).
	Get(ctx context.Context, id string) (*Session, error)

	// Touch updates last_accessed_at. Best-effort: callers treat failure
	// as non-fatal.
	Touch(ctx context.Context, id string) error

	// Delete removes a session (logout).
	Delete(ctx context.Context, id string) error

	// DeleteByUsername removes every session held by a user. Operator
	// hook for forced sign-out everywhere; not surfaced in the UI.
	DeleteByUsername(ctx context.Context, username string) (int64, error)

	// SweepExpired deletes all expired rows and returns the count.
	// Idempotent; safe to run concurrently from multiple processes.
	SweepExpired(ctx context.Context) (int64, error)
}

// sqliteSessionStore implements SessionStore over the shared SQLite file.
type sqliteSessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSessionStore creates a session store backed by the given DB handle
// with a fixed session TTL.
func NewSessionStore(db *sql.DB, ttl time.Duration) SessionStore {
	return &sqliteSessionStore{db: db, ttl: ttl}
}

// Create inserts a new session row with created_at = now and
// expires_at = now + TTL.
func (s *sqliteSessionStore) Create(ctx context.Context, snapshot ProfileSnapshot) (string, error) {
	id, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO sessions
		(id, username, display_name, email, role, subscription_tier,
		 subscription_status, created_at, last_accessed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		id, snapshot.Username, snapshot.DisplayName, snapshot.Email,
		string(snapshot.Role), snapshot.SubscriptionTier, snapshot.SubscriptionStatus,
		now, now, now.Add(s.ttl),
	)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	return id, nil
}

// Get retrieves a session by token. Expired rows are deleted on sight and
// reported as not-found; a second Get for the same token stays not-found.
func (s *sqliteSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	query := `SELECT id, username, display_name, email, role,
	                 subscription_tier, subscription_status,
	                 created_at, last_accessed_at, expires_at
	          FROM sessions WHERE id = ?`

	sess := &Session{}
	var role string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.Profile.Username, &sess.Profile.DisplayName,
		&sess.Profile.Email, &role,
		&sess.Profile.SubscriptionTier, &sess.Profile.SubscriptionStatus,
		&sess.CreatedAt, &sess.LastAccessedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.Profile.Role = Role(role)

	if sess.Expired(time.Now().UTC()) {
		// Lazy deletion. The DELETE is keyed on expiry too, so a
		// concurrent Touch that somehow extended the row would win.
		if err := s.deleteExpired(ctx, id); err != nil {
			slog.Warn("failed to delete expired session",
				slog.Any("error", err),
			)
		}
		return nil, apperror.NewNotFound("session expired")
	}

	return sess, nil
}

// Touch sets last_accessed_at to now. Touching a deleted or expired
// session affects zero rows, which is not an error.
func (s *sqliteSessionStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_accessed_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Delete removes a session by token. Deleting an absent row is not an
// error: a logout racing another process's logout must not fail.
func (s *sqliteSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteByUsername removes every session for a user and returns the count.
func (s *sqliteSessionStore) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions for user: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SweepExpired deletes all rows past their expiry in one statement.
func (s *sqliteSessionStore) SweepExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// deleteExpired removes a specific row only while it is still expired.
func (s *sqliteSessionStore) deleteExpired(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ? AND expires_at < ?`,
		id, time.Now().UTC(),
	)
	return err
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
