package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blockpass/accounts-api/internal/auth"
	"github.com/blockpass/accounts-api/internal/http/respond"
	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/storage"
)

type contextKey struct{}

var accountKey contextKey

// AccountFrom returns the authenticated account stored in the request
// context, if identity resolution succeeded.
func AccountFrom(ctx context.Context) (models.Account, bool) {
	account, ok := ctx.Value(accountKey).(models.Account)
	return account, ok
}

// Authenticator verifies bearer tokens and resolves the caller's account.
type Authenticator struct {
	tokens *auth.TokenManager
	store  storage.AccountStore
	log    *slog.Logger
}

// NewAuthenticator wires the token manager and account store.
func NewAuthenticator(tokens *auth.TokenManager, store storage.AccountStore, log *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, store: store, log: log}
}

// Authenticate extracts and verifies the Authorization bearer token, then
// loads the account named by its subject into the request context. The role
// used downstream is the freshly loaded one, not the token's snapshot, so
// role changes take effect on the next request. A verified token whose
// account no longer exists passes through without an identity; the role
// guard rejects it as unauthenticated.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			respond.Error(w, http.StatusUnauthorized, "token not provided")
			return
		}

		claims, err := a.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.log.Warn("token verification failed",
				"error", err, "expired", errors.Is(err, auth.ErrExpiredToken))
			respond.Error(w, http.StatusUnauthorized, "invalid token")
			return
		}

		account, err := a.store.FindByID(r.Context(), claims.Subject)
		switch {
		case err == nil:
			// The resolved identity never carries the credential secret.
			account.PasswordHash = ""
			r = r.WithContext(context.WithValue(r.Context(), accountKey, account))
		case errors.Is(err, storage.ErrNotFound):
			a.log.Warn("token subject no longer exists", "subject", claims.Subject)
		case errors.Is(err, storage.ErrUnavailable):
			respond.Error(w, http.StatusServiceUnavailable, "service unavailable")
			return
		default:
			a.log.Error("resolve identity failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, "internal error")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole admits a request iff an identity was resolved and its role is a
// member of the given set. The identity check runs before the role check so a
// missing account surfaces as 401, never as a role mismatch.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFrom(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "token not provided")
				return
			}
			if _, admitted := allowed[account.Profile]; !admitted {
				respond.Error(w, http.StatusForbidden, "insufficient permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
