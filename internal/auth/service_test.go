package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/foyerhq/foyer/internal/apperror"
)

// fakeRegistry is an in-memory CredentialRegistry with optional function
// overrides for failure injection.
type fakeRegistry struct {
	users map[string]*UserCredential

	updateHashFunc func(ctx context.Context, username, hash string) error
	updatedHashes  map[string]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		users:         make(map[string]*UserCredential),
		updatedHashes: make(map[string]string),
	}
}

func (f *fakeRegistry) FindByUsername(_ context.Context, username string) (*UserCredential, error) {
	cred, ok := f.users[username]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	copied := *cred
	return &copied, nil
}

func (f *fakeRegistry) EmailExists(_ context.Context, email string) (bool, error) {
	for _, cred := range f.users {
		if strings.EqualFold(cred.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRegistry) Insert(_ context.Context, cred *UserCredential) error {
	if _, ok := f.users[cred.Username]; ok {
		return apperror.NewConflict("username is already taken")
	}
	copied := *cred
	f.users[cred.Username] = &copied
	return nil
}

func (f *fakeRegistry) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	if f.updateHashFunc != nil {
		return f.updateHashFunc(ctx, username, hash)
	}
	cred, ok := f.users[username]
	if !ok {
		return apperror.NewNotFound("user not found")
	}
	cred.PasswordHash = hash
	f.updatedHashes[username] = hash
	return nil
}

func newServiceContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func newTestService(t *testing.T, registry CredentialRegistry, store SessionStore) AuthService {
	t.Helper()
	return NewAuthService(registry, store, NewPropagator(time.Hour))
}

// seedAuthenticated puts a request into the state the resolving middleware
// leaves behind for a logged-in caller.
func seedAuthenticated(c echo.Context, sess *Session) {
	identity := seedIdentity(c, sess)
	c.Set(contextKeyProfile, identity.Profile())
	c.Set(contextKeySessionID, sess.ID)
}

func seedUser(t *testing.T, registry *fakeRegistry, username, password string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing seed password: %v", err)
	}
	registry.users[username] = &UserCredential{
		Username:           username,
		DisplayName:        "Alice",
		Email:              username + "@example.com",
		PasswordHash:       hash,
		Role:               RoleUser,
		SubscriptionTier:   TierFree,
		SubscriptionStatus: StatusInactive,
		CreatedAt:          time.Now().UTC(),
	}
}

func assertUnauthorizedGeneric(t *testing.T, err error) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 AppError, got %v", err)
	}
	if appErr.Message != "invalid username or password" {
		t.Errorf("expected generic credential message, got %q", appErr.Message)
	}
}

func TestLogin_Success(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "correct horse battery")

	var created ProfileSnapshot
	store := &fakeSessionStore{
		createFunc: func(_ context.Context, profile ProfileSnapshot) (string, error) {
			created = profile
			return "tok-1", nil
		},
	}
	service := newTestService(t, registry, store)
	c, rec := newServiceContext(t)

	msg, err := service.Login(c, LoginInput{Username: "alice", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if msg != "Welcome back, Alice!" {
		t.Errorf("unexpected welcome message: %q", msg)
	}
	if created.Username != "alice" || created.Role != RoleUser {
		t.Errorf("unexpected profile snapshot in session: %+v", created)
	}

	if !service.IsAuthenticated(c) {
		t.Error("expected authenticated after login")
	}
	if CurrentSessionID(c) != "tok-1" {
		t.Errorf("expected request session id tok-1, got %q", CurrentSessionID(c))
	}
	if user := service.CurrentUser(c); user == nil || user.Username != "alice" {
		t.Errorf("expected current user alice, got %+v", user)
	}

	cookie := setCookieNamed(rec, sessionCookieName)
	if cookie == nil || cookie.Value != "tok-1" {
		t.Errorf("expected session cookie carrying tok-1, got %v", cookie)
	}
}

// A login hydrates only the request it happened on. A different request
// served by the same service value (a different browser hitting the same
// process) stays anonymous.
func TestLogin_DoesNotLeakAcrossRequests(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "correct horse battery")
	store := &fakeSessionStore{
		createFunc: func(context.Context, ProfileSnapshot) (string, error) {
			return "alice-token", nil
		},
	}
	service := newTestService(t, registry, store)

	cA, _ := newServiceContext(t)
	if _, err := service.Login(cA, LoginInput{Username: "alice", Password: "correct horse battery"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !service.IsAuthenticated(cA) {
		t.Fatal("expected request A authenticated")
	}

	cB, _ := newServiceContext(t)
	if service.IsAuthenticated(cB) {
		t.Error("request B must not inherit request A's login")
	}
	if user := service.CurrentUser(cB); user != nil {
		t.Errorf("request B must not see request A's profile, got %q", user.Username)
	}
	if CurrentSessionID(cB) != "" {
		t.Errorf("request B must not see request A's token, got %q", CurrentSessionID(cB))
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "correct horse battery")
	service := newTestService(t, registry, &fakeSessionStore{})
	c, _ := newServiceContext(t)

	_, err := service.Login(c, LoginInput{Username: "alice", Password: "wrong"})
	assertUnauthorizedGeneric(t, err)
	if service.IsAuthenticated(c) {
		t.Error("must not be authenticated after failed login")
	}
}

func TestLogin_UnknownUserSameMessage(t *testing.T) {
	service := newTestService(t, newFakeRegistry(), &fakeSessionStore{})
	c, _ := newServiceContext(t)

	_, err := service.Login(c, LoginInput{Username: "nobody", Password: "anything"})
	assertUnauthorizedGeneric(t, err)
}

func TestLogin_LegacyPlaintextUpgraded(t *testing.T) {
	registry := newFakeRegistry()
	registry.users["carol"] = &UserCredential{
		Username:     "carol",
		DisplayName:  "Carol",
		Email:        "carol@example.com",
		PasswordHash: "hunter2", // legacy plaintext entry
		Role:         RoleUser,
	}
	service := newTestService(t, registry, &fakeSessionStore{})
	c, _ := newServiceContext(t)

	if _, err := service.Login(c, LoginInput{Username: "carol", Password: "hunter2"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	upgraded, ok := registry.updatedHashes["carol"]
	if !ok {
		t.Fatal("expected legacy password to be re-hashed on login")
	}
	if !strings.HasPrefix(upgraded, "$argon2id$") {
		t.Errorf("expected argon2id hash, got %q", upgraded)
	}
	// The new hash must still verify, and no longer via the legacy path.
	okVerify, legacy := VerifyPassword("hunter2", upgraded)
	if !okVerify || legacy {
		t.Errorf("expected upgraded hash to verify as argon2id, ok=%v legacy=%v", okVerify, legacy)
	}

	// A wrong password against a legacy entry must not trigger the upgrade.
	registry.updatedHashes = map[string]string{}
	registry.users["carol"].PasswordHash = "hunter2"
	if _, err := service.Login(c, LoginInput{Username: "carol", Password: "wrong"}); err == nil {
		t.Fatal("expected login failure")
	}
	if len(registry.updatedHashes) != 0 {
		t.Error("failed login must not rewrite the stored hash")
	}
}

func TestLogin_LegacyUpgradeFailureStillLogsIn(t *testing.T) {
	registry := newFakeRegistry()
	registry.users["carol"] = &UserCredential{
		Username:     "carol",
		DisplayName:  "Carol",
		Email:        "carol@example.com",
		PasswordHash: "hunter2",
		Role:         RoleUser,
	}
	registry.updateHashFunc = func(context.Context, string, string) error {
		return errors.New("disk full")
	}
	service := newTestService(t, registry, &fakeSessionStore{})
	c, _ := newServiceContext(t)

	if _, err := service.Login(c, LoginInput{Username: "carol", Password: "hunter2"}); err != nil {
		t.Fatalf("login must survive a failed hash upgrade, got %v", err)
	}
	if !service.IsAuthenticated(c) {
		t.Error("expected authenticated despite upgrade failure")
	}
}

func TestLogin_StoreOutage(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "correct horse battery")
	store := &fakeSessionStore{
		createFunc: func(context.Context, ProfileSnapshot) (string, error) {
			return "", errors.New("database is locked")
		},
	}
	service := newTestService(t, registry, store)
	c, _ := newServiceContext(t)

	_, err := service.Login(c, LoginInput{Username: "alice", Password: "correct horse battery"})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 AppError, got %v", err)
	}
	if service.IsAuthenticated(c) {
		t.Error("must not be authenticated when session creation fails")
	}
}

func TestLogout(t *testing.T) {
	deleted := ""
	store := &fakeSessionStore{
		deleteFunc: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	service := newTestService(t, newFakeRegistry(), store)
	c, rec := newServiceContext(t)
	seedAuthenticated(c, liveSession("tok-1", "alice"))

	if err := service.Logout(c); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if deleted != "tok-1" {
		t.Errorf("expected shared-store delete of tok-1, got %q", deleted)
	}
	if service.IsAuthenticated(c) {
		t.Error("expected anonymous after logout")
	}
	if service.CurrentUser(c) != nil {
		t.Error("expected nil current user after logout")
	}
	if CurrentSessionID(c) != "" {
		t.Errorf("expected empty session id after logout, got %q", CurrentSessionID(c))
	}

	cookie := setCookieNamed(rec, sessionCookieName)
	if cookie == nil || cookie.MaxAge != -1 {
		t.Errorf("expected cookie cleared on logout, got %v", cookie)
	}
}

func TestLogout_StoreFailureStillClearsLocally(t *testing.T) {
	store := &fakeSessionStore{
		deleteFunc: func(context.Context, string) error {
			return errors.New("database is locked")
		},
	}
	service := newTestService(t, newFakeRegistry(), store)
	c, _ := newServiceContext(t)
	seedAuthenticated(c, liveSession("tok-1", "alice"))

	if err := service.Logout(c); err != nil {
		t.Fatalf("logout must not fail on a flaky store, got %v", err)
	}
	if service.IsAuthenticated(c) {
		t.Error("expected anonymous after logout")
	}
}

func TestRegister_Defaults(t *testing.T) {
	registry := newFakeRegistry()
	service := newTestService(t, registry, &fakeSessionStore{})

	cred, err := service.Register(context.Background(), RegisterInput{
		Username:    "dave",
		DisplayName: "Dave",
		Email:       "Dave@Example.com",
		Password:    "a long password",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if cred.Role != RoleUser {
		t.Errorf("expected default role user, got %s", cred.Role)
	}
	if cred.Email != "dave@example.com" {
		t.Errorf("expected lowercased email, got %s", cred.Email)
	}
	if cred.SubscriptionTier != TierFree || cred.SubscriptionStatus != StatusInactive {
		t.Errorf("expected free/inactive defaults, got %s/%s", cred.SubscriptionTier, cred.SubscriptionStatus)
	}
	if !strings.HasPrefix(cred.PasswordHash, "$argon2id$") {
		t.Errorf("expected argon2id hash, got %q", cred.PasswordHash)
	}

	// And the credential must now log in.
	c, _ := newServiceContext(t)
	if _, err := service.Login(c, LoginInput{Username: "dave", Password: "a long password"}); err != nil {
		t.Errorf("expected fresh registration to log in, got %v", err)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "original password")
	originalHash := registry.users["alice"].PasswordHash

	service := newTestService(t, registry, &fakeSessionStore{})
	_, err := service.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "other@example.com",
		Password: "another password",
	})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 AppError, got %v", err)
	}
	if registry.users["alice"].PasswordHash != originalHash {
		t.Error("duplicate registration must not touch the existing credential")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	registry := newFakeRegistry()
	seedUser(t, registry, "alice", "original password")

	service := newTestService(t, registry, &fakeSessionStore{})
	_, err := service.Register(context.Background(), RegisterInput{
		Username: "alice2",
		Email:    "ALICE@example.com",
		Password: "another password",
	})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 AppError for duplicate email, got %v", err)
	}
	if _, ok := registry.users["alice2"]; ok {
		t.Error("conflicting registration must not persist a credential")
	}
}

func TestRegister_RejectsInvalidRole(t *testing.T) {
	service := newTestService(t, newFakeRegistry(), &fakeSessionStore{})

	for _, role := range []Role{RolePublic, Role("owner")} {
		_, err := service.Register(context.Background(), RegisterInput{
			Username: "eve",
			Email:    "eve@example.com",
			Password: "a long password",
			Role:     role,
		})
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Code != http.StatusUnprocessableEntity {
			t.Errorf("role %q: expected 422 AppError, got %v", role, err)
		}
	}
}
