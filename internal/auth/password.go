package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher derives and verifies bcrypt credential secrets.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher with the given work factor. Costs outside
// bcrypt's supported range fall back to the default cost of 10.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{cost: cost}
}

// Hash derives a salted, one-way secret from the plaintext. Hashing the same
// plaintext twice yields different secrets.
func (h PasswordHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the plaintext matches the stored secret. A malformed
// secret fails closed.
func (h PasswordHasher) Verify(plaintext, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(secret), []byte(plaintext)) == nil
}
