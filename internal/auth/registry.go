package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/foyerhq/foyer/internal/apperror"
)

// CredentialRegistry defines the data access contract for user credentials.
// The backing store is a structured text file read wholesale at process
// start and rewritten wholesale on every mutation.
type CredentialRegistry interface {
	FindByUsername(ctx context.Context, username string) (*UserCredential, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, cred *UserCredential) error

	// UpdatePasswordHash replaces a user's stored hash. Used to migrate
	// legacy plaintext entries to argon2id after a successful login.
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

// credentialFile is the on-disk YAML document shape.
type credentialFile struct {
	Users []UserCredential `yaml:"users"`
}

// fileRegistry implements CredentialRegistry over a YAML file.
//
// The mutex excludes concurrent writers within this process only.
// Concurrent registrations from two sibling processes can still race on the
// whole-file read-modify-write; that is a known limitation of the file
// backing. Before productionizing registration at scale, credential writes
// should move behind a single-writer arbitration point (an advisory file
// lock, or the same SQLite store used for sessions).
type fileRegistry struct {
	path string

	mu    sync.RWMutex
	users map[string]*UserCredential // keyed by username
}

// NewFileRegistry loads the credential file at path. A missing file is not
// an error -- the registry starts empty and the file is created on the
// first registration.
func NewFileRegistry(path string) (CredentialRegistry, error) {
	r := &fileRegistry{
		path:  path,
		users: make(map[string]*UserCredential),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load reads the whole credential file into memory.
func (r *fileRegistry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading credential file: %w", err)
	}

	var doc credentialFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding credential file: %w", err)
	}

	for i := range doc.Users {
		u := doc.Users[i]
		if u.Username == "" {
			return fmt.Errorf("credential file: entry %d has no username", i)
		}
		r.users[u.Username] = &u
	}
	return nil
}

// persist rewrites the whole credential file. Entries are written sorted by
// username so rewrites are diffable. The write goes to a temp file first
// and is renamed into place so a crash mid-write cannot truncate the file.
// Callers must hold the write lock.
func (r *fileRegistry) persist() error {
	doc := credentialFile{Users: make([]UserCredential, 0, len(r.users))}
	for _, u := range r.users {
		doc.Users = append(doc.Users, *u)
	}
	sort.Slice(doc.Users, func(i, j int) bool {
		return doc.Users[i].Username < doc.Users[j].Username
	})

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding credential file: %w", err)
	}

	tmp := r.path + ".tmp"
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating credential dir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}
	return nil
}

// FindByUsername retrieves a credential by username.
// Returns apperror.NotFound if no user exists with this username.
func (r *fileRegistry) FindByUsername(ctx context.Context, username string) (*UserCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	cred := *u
	return &cred, nil
}

// EmailExists returns true if any credential already uses the given email.
// Used during registration to check for duplicates before hashing the password.
func (r *fileRegistry) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.ToLower(u.Email) == email {
			return true, nil
		}
	}
	return false, nil
}

// Insert adds a new credential and rewrites the file. Fails with Conflict
// if the username or email is already taken. The in-memory map is only
// mutated after both uniqueness checks pass, and is rolled back if the
// disk write fails, so a partially-applied insert is never left behind.
func (r *fileRegistry) Insert(ctx context.Context, cred *UserCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[cred.Username]; exists {
		return apperror.NewConflict("username is already taken")
	}
	email := strings.ToLower(cred.Email)
	for _, u := range r.users {
		if strings.ToLower(u.Email) == email {
			return apperror.NewConflict("an account with this email already exists")
		}
	}

	c := *cred
	r.users[cred.Username] = &c

	if err := r.persist(); err != nil {
		delete(r.users, cred.Username)
		return err
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash for username and rewrites the
// file, restoring the previous hash in memory if the write fails.
func (r *fileRegistry) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return apperror.NewNotFound("user not found")
	}

	prev := u.PasswordHash
	u.PasswordHash = hash

	if err := r.persist(); err != nil {
		u.PasswordHash = prev
		return err
	}
	return nil
}
