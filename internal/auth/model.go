// Package auth is the shared login layer for the Foyer dashboard fleet.
// It provides credential storage, password verification, cross-process
// sessions in a shared SQLite file, three-tier session discovery
// (in-process cache, inbound link parameter, cookie), session propagation
// into outbound links and cookies, and ordinal role entitlements.
//
// Every dashboard process constructs one Service per process and consumes
// it through Login, Logout, Register, IsAuthenticated, CurrentUser, and
// HasAccess. Sibling processes never talk to each other directly; the only
// shared state is the session database and the token carried by the
// browser.
package auth

import (
	"sync"
	"time"
)

// Role is a user's access level, ranked ordinally by the entitlement gate.
type Role string

// Roles in ascending rank order.
const (
	RolePublic     Role = "public"
	RoleUser       Role = "user"
	RoleSubscriber Role = "subscriber"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Subscription tiers and statuses. Billing itself is resolved elsewhere;
// these are stored values only.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// UserCredential is one registered user as stored in the credential file.
// Username is the unique key and immutable once created. Email is unique
// across all credentials.
type UserCredential struct {
	Username           string    `yaml:"username"`
	DisplayName        string    `yaml:"display_name"`
	Email              string    `yaml:"email"`
	PasswordHash       string    `yaml:"password_hash"` // argon2id PHC string; legacy plaintext tolerated
	Role               Role      `yaml:"role"`
	SubscriptionTier   string    `yaml:"subscription_tier"`
	SubscriptionStatus string    `yaml:"subscription_status"`
	CreatedAt          time.Time `yaml:"created_at"`
}

// ProfileSnapshot is the denormalized copy of a user's profile taken at
// session-creation time. Session validity never depends on a join back to
// the credential file at read time.
type ProfileSnapshot struct {
	Username           string
	DisplayName        string
	Email              string
	Role               Role
	SubscriptionTier   string
	SubscriptionStatus string
}

// Session is one row in the shared session table. A user may hold many
// concurrent sessions (one per browser or app).
type Session struct {
	ID             string
	Profile        ProfileSnapshot
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the session is past its expiry. A session is
// valid iff ExpiresAt is strictly after now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// --- Request-scoped identity ---

// IdentityState is the resolution state of a request's identity.
type IdentityState int

const (
	// StateUnresolved means no resolution has happened yet this request.
	StateUnresolved IdentityState = iota
	// StateAnonymous means resolution ran and found no valid session.
	StateAnonymous
	// StateAuthenticated means a valid session is hydrated.
	StateAuthenticated
)

// Identity is the in-memory copy of one caller's session. A fresh value is
// minted per request: a server process handles many concurrent browsers,
// and identity shared any wider would let one caller's login bleed into
// another caller's page. It is never the source of truth either way: the
// resolver re-validates any cached session ID against the store, because a
// logout in a sibling process (or expiry) can invalidate it at any time.
type Identity struct {
	mu        sync.RWMutex
	state     IdentityState
	sessionID string
	profile   *ProfileSnapshot
}

// NewIdentity returns an unresolved identity.
func NewIdentity() *Identity {
	return &Identity{state: StateUnresolved}
}

// State returns the current resolution state.
func (i *Identity) State() IdentityState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// SessionID returns the cached session token, or "" if not authenticated.
func (i *Identity) SessionID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sessionID
}

// Profile returns a copy of the hydrated profile, or nil if not
// authenticated.
func (i *Identity) Profile() *ProfileSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.profile == nil {
		return nil
	}
	p := *i.profile
	return &p
}

// setAuthenticated hydrates the identity from a resolved session.
func (i *Identity) setAuthenticated(s *Session) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateAuthenticated
	i.sessionID = s.ID
	p := s.Profile
	i.profile = &p
}

// setAnonymous clears any cached session data.
func (i *Identity) setAnonymous() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateAnonymous
	i.sessionID = ""
	i.profile = nil
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Username    string `json:"username" form:"username"`
	DisplayName string `json:"display_name" form:"display_name"`
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	Confirm     string `json:"confirm" form:"confirm"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new user.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	Role        Role // defaults to RoleUser when empty
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Username string
	Password string
}
