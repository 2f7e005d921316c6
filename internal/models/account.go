package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the access level attached to an account profile.
type Role string

const (
	RoleCompany    Role = "company"
	RoleIndividual Role = "individual"
	RoleAdmin      Role = "admin"
)

// Roles lists every known role, useful for "any authenticated role" guards.
var Roles = []Role{RoleCompany, RoleIndividual, RoleAdmin}

// ParseRole maps a raw string onto a known role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case RoleCompany:
		return RoleCompany, nil
	case RoleIndividual:
		return RoleIndividual, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown profile %q", s)
	}
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Account is a persisted platform user. The password hash never leaves the
// server: it is excluded from JSON serialization.
type Account struct {
	ID            string    `json:"id"`
	Profile       Role      `json:"profile"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	WalletAddress *string   `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewAccount builds an account with a fresh ID and creation timestamp.
// The email is stored normalized.
func NewAccount(profile Role, name, email, passwordHash string, walletAddress *string) Account {
	return Account{
		ID:            uuid.NewString(),
		Profile:       profile,
		Name:          strings.TrimSpace(name),
		Email:         NormalizeEmail(email),
		PasswordHash:  passwordHash,
		WalletAddress: walletAddress,
		CreatedAt:     time.Now().UTC(),
	}
}

// NormalizeEmail lowercases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
