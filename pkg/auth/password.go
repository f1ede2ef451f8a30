package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost follows the current OWASP work-factor recommendation.
const BcryptCost = 14

// HashPassword hashes a plaintext password for storage. Used by the admin
// bootstrap path; the marketplace's account management owns hashing
// everywhere else.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// VerifyPassword reports whether plaintext matches the stored hash. bcrypt's
// comparison is constant-time-oriented; callers add jitter on top so the
// outcome is not distinguishable by response latency.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
