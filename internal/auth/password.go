package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters tuned for dashboards running on modest shared
// hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP recommendations
// for argon2id: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// argonPrefix tags hashes produced by HashPassword. Stored values without
// it are treated as legacy plaintext (see VerifyPassword).
const argonPrefix = "$argon2id$"

// HashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// Encode to the standard PHC string format.
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// VerifyPassword checks a plaintext password against the stored value. If
// the stored value carries the argon2id prefix it is verified as a PHC
// hash; otherwise the legacy path compares raw bytes. The legacy path
// exists only for credential files predating hashing -- every use is
// logged so the remaining plaintext entries can be tracked to zero, and
// the service re-hashes on the next successful login.
//
// Returns (match, legacy): legacy is true when the plaintext path decided
// the outcome.
func VerifyPassword(password, stored string) (bool, bool) {
	if strings.HasPrefix(stored, argonPrefix) {
		return verifyArgon2(password, stored), false
	}

	slog.Warn("legacy plaintext password comparison",
		slog.String("remediation", "entry will be re-hashed on next successful login"),
	)
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, true
}

// verifyArgon2 checks a plaintext password against an argon2id hash string.
// Returns true if the password matches.
func verifyArgon2(password, encodedHash string) bool {
	// Parse the encoded hash to extract parameters, salt, and hash.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Compute the hash of the provided password with the same parameters.
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}
