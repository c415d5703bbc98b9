package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	password := "my-secret-password-123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id PHC string, got %q", hash)
	}

	ok, legacy := VerifyPassword(password, hash)
	if !ok {
		t.Error("expected correct password to verify")
	}
	if legacy {
		t.Error("expected argon2id path, got legacy")
	}

	ok, _ = VerifyPassword("wrong-password", hash)
	if ok {
		t.Error("expected wrong password to fail verification")
	}
}

func TestVerifyPassword_LegacyPlaintext(t *testing.T) {
	ok, legacy := VerifyPassword("hunter2", "hunter2")
	if !ok {
		t.Error("expected matching plaintext to verify")
	}
	if !legacy {
		t.Error("expected plaintext comparison to be flagged legacy")
	}

	ok, legacy = VerifyPassword("hunter2", "different")
	if ok {
		t.Error("expected mismatched plaintext to fail")
	}
	if !legacy {
		t.Error("expected mismatch to still report the legacy path")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"too few parts", "$argon2id$v=19$m=65536"},
		{"corrupted salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!invalid$aGFzaA"},
		{"corrupted hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!invalid"},
		{"garbled params", "$argon2id$v=19$nope$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok, _ := VerifyPassword("password", tt.hash); ok {
				t.Error("expected invalid hash to fail verification")
			}
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	hash2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash1 == hash2 {
		t.Error("expected different salts to produce different hashes")
	}
}
