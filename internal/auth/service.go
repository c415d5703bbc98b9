package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// AuthService defines the login-layer contract consumed by every page.
// Handlers and pages call these methods -- they never touch the registry,
// store, or propagator directly.
//
// One value is constructed per process with injected dependencies and
// passed explicitly to handlers; there is no ambient "current auth"
// global. All identity is carried on the request context, so concurrent
// callers of the same process never see each other's sessions.
type AuthService interface {
	// Login verifies credentials, mints a session in the shared store,
	// pushes the token into the browser cookie, and hydrates this
	// request's identity. Returns the user-facing welcome message.
	Login(c echo.Context, input LoginInput) (string, error)

	// Logout deletes the current session from the shared store, clears
	// the cookie, and resets this request's identity to anonymous.
	Logout(c echo.Context) error

	// Register creates a new credential. The role defaults to "user".
	Register(ctx context.Context, input RegisterInput) (*UserCredential, error)

	// IsAuthenticated and CurrentUser read the identity the resolver
	// already hydrated for this request; they perform no store
	// round-trip.
	IsAuthenticated(c echo.Context) bool
	CurrentUser(c echo.Context) *ProfileSnapshot
}

// authService implements AuthService.
type authService struct {
	registry   CredentialRegistry
	store      SessionStore
	propagator *Propagator
}

// NewAuthService creates the per-process auth service with the given
// dependencies.
func NewAuthService(registry CredentialRegistry, store SessionStore, propagator *Propagator) AuthService {
	return &authService{
		registry:   registry,
		store:      store,
		propagator: propagator,
	}
}

// Login authenticates a user by username and password. Unknown usernames
// and wrong passwords produce the same generic message so the login form
// can't be used to enumerate accounts.
func (s *authService) Login(c echo.Context, input LoginInput) (string, error) {
	ctx := c.Request().Context()

	cred, err := s.registry.FindByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if isNotFound(err) {
			return "", apperror.NewUnauthorized("invalid username or password")
		}
		return "", apperror.NewUnavailable(fmt.Errorf("finding user: %w", err))
	}

	ok, legacy := VerifyPassword(input.Password, cred.PasswordHash)
	if !ok {
		return "", apperror.NewUnauthorized("invalid username or password")
	}

	// A successful login over a legacy plaintext entry is the migration
	// moment: re-hash under argon2id and rewrite the credential file so
	// the plaintext value disappears. Best effort -- the login itself
	// already succeeded.
	if legacy {
		if hash, err := HashPassword(input.Password); err == nil {
			if err := s.registry.UpdatePasswordHash(ctx, cred.Username, hash); err != nil {
				slog.Warn("failed to upgrade legacy password hash",
					slog.String("username", cred.Username),
					slog.Any("error", err),
				)
			} else {
				slog.Info("legacy password upgraded to argon2id",
					slog.String("username", cred.Username),
				)
			}
		}
	}

	token, err := s.store.Create(ctx, snapshotOf(cred))
	if err != nil {
		return "", apperror.NewUnavailable(fmt.Errorf("creating session: %w", err))
	}

	s.propagator.SetCookie(c, token)
	s.hydrateRequest(c, &Session{ID: token, Profile: snapshotOf(cred)})

	slog.Info("user logged in",
		slog.String("username", cred.Username),
		slog.String("role", string(cred.Role)),
	)

	return fmt.Sprintf("Welcome back, %s!", cred.DisplayName), nil
}

// Logout terminates the current session everywhere: the shared store row
// is deleted so sibling processes resolving the same token go anonymous
// too. The cookie is cleared and identity reset regardless of whether the
// store delete succeeds -- this caller's logout must not be blocked by a
// flaky store.
func (s *authService) Logout(c echo.Context) error {
	if id := CurrentSessionID(c); id != "" {
		if err := s.store.Delete(c.Request().Context(), id); err != nil {
			slog.Warn("failed to delete session on logout",
				slog.Any("error", err),
			)
		}
	}

	s.propagator.ClearCookie(c)
	if identity := requestIdentity(c); identity != nil {
		identity.setAnonymous()
	}
	c.Set(contextKeyProfile, nil)
	c.Set(contextKeySessionID, nil)

	slog.Info("user logged out")
	return nil
}

// Register creates a new user account. It validates uniqueness, hashes the
// password with argon2id, and persists the credential; the registry rolls
// back on any failure so no partial record survives.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*UserCredential, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	role := input.Role
	if role == "" {
		role = RoleUser
	}
	if !KnownRole(role) || role == RolePublic {
		return nil, apperror.NewValidation("invalid role")
	}

	// Check uniqueness before doing expensive hashing. The registry
	// re-checks under its write lock on Insert.
	if _, err := s.registry.FindByUsername(ctx, username); err == nil {
		return nil, apperror.NewConflict("username is already taken")
	} else if !isNotFound(err) {
		return nil, apperror.NewUnavailable(fmt.Errorf("checking username: %w", err))
	}
	exists, err := s.registry.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewUnavailable(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	cred := &UserCredential{
		Username:           username,
		DisplayName:        strings.TrimSpace(input.DisplayName),
		Email:              email,
		PasswordHash:       hash,
		Role:               role,
		SubscriptionTier:   TierFree,
		SubscriptionStatus: StatusInactive,
		CreatedAt:          time.Now().UTC(),
	}

	if err := s.registry.Insert(ctx, cred); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.NewUnavailable(fmt.Errorf("inserting credential: %w", err))
	}

	slog.Info("user registered",
		slog.String("username", cred.Username),
		slog.String("role", string(cred.Role)),
	)

	return cred, nil
}

// IsAuthenticated reports whether this request carries a resolved, valid
// session.
func (s *authService) IsAuthenticated(c echo.Context) bool {
	return CurrentProfile(c) != nil
}

// CurrentUser returns the profile hydrated for this request, or nil for
// anonymous callers.
func (s *authService) CurrentUser(c echo.Context) *ProfileSnapshot {
	return CurrentProfile(c)
}

// hydrateRequest makes a freshly minted session visible to the rest of
// this request: the identity, the profile, and the session-ID context key
// all reflect the new login immediately.
func (s *authService) hydrateRequest(c echo.Context, sess *Session) {
	identity := requestIdentity(c)
	if identity == nil {
		identity = NewIdentity()
		c.Set(contextKeyIdentity, identity)
	}
	identity.setAuthenticated(sess)
	c.Set(contextKeyProfile, identity.Profile())
	c.Set(contextKeySessionID, sess.ID)
}

// snapshotOf copies the session-relevant profile fields out of a
// credential, normalizing subscription fields that hand-edited credential
// files may leave blank.
func snapshotOf(cred *UserCredential) ProfileSnapshot {
	tier := cred.SubscriptionTier
	if tier == "" {
		tier = TierFree
	}
	status := cred.SubscriptionStatus
	if status == "" {
		status = StatusInactive
	}
	return ProfileSnapshot{
		Username:           cred.Username,
		DisplayName:        cred.DisplayName,
		Email:              cred.Email,
		Role:               cred.Role,
		SubscriptionTier:   tier,
		SubscriptionStatus: status,
	}
}

// isNotFound reports whether err is a 404 AppError.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}
