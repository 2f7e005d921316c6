package storage

import (
	"context"
	"errors"

	"github.com/blockpass/accounts-api/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict (duplicate email).
var ErrAlreadyExists = errors.New("record already exists")

// ErrUnavailable indicates the store could not be reached or timed out.
var ErrUnavailable = errors.New("storage unavailable")

// AccountUpdate carries the partial fields of an update; nil means "leave
// untouched". Profile is absent on purpose: it is immutable after creation.
type AccountUpdate struct {
	Name          *string
	Email         *string
	PasswordHash  *string
	WalletAddress *string
}

// AccountStore captures the persistence operations needed by handlers and
// middleware. Email uniqueness is enforced at this boundary.
type AccountStore interface {
	Insert(ctx context.Context, account models.Account) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate) (models.Account, error)
	Delete(ctx context.Context, id string) error
}
