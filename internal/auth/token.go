package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blockpass/accounts-api/internal/models"
)

// Token verification failures. Both are treated as "unauthenticated" by
// callers; keeping them distinct helps logs and tests.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token has expired")
)

// DefaultTokenTTL is used when no lifetime is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims carried by an issued token: the account ID as subject plus the role
// snapshot at issuance time.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// TokenManager issues and verifies signed, expiring identity tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

// NewTokenManager creates a manager for the given signing secret. An empty
// secret is a process-level misconfiguration and refuses construction. A zero
// TTL falls back to one day.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)

	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		parser: parser,
	}, nil
}

// Issue signs a self-contained token asserting the subject's identity and
// role until the manager's TTL elapses.
func (t *TokenManager) Issue(subject string, role models.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks signature integrity and expiry, returning the embedded claims.
// It fails with ErrExpiredToken after expiry and ErrInvalidToken on any other
// defect (bad signature, malformed structure, wrong algorithm).
func (t *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := t.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
