package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/storage"
)

// Ensure Store satisfies the storage.AccountStore interface at compile time.
var _ storage.AccountStore = (*Store)(nil)

const uniqueViolationCode = "23505"

// Store provides Postgres-backed persistence for accounts.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewAccountStore connects a pool, applies migrations, and returns a ready
// store. Every call carries the given timeout; zero means 5 seconds.
func NewAccountStore(ctx context.Context, databaseURL string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := runMigrations(ctx, databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, timeout: timeout}, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

const accountColumns = `id, profile, name, email, password_hash, wallet_address, created_at`

// Insert persists a new account row. A duplicate email surfaces as
// storage.ErrAlreadyExists.
func (s *Store) Insert(ctx context.Context, account models.Account) (models.Account, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	const query = `
		INSERT INTO accounts (id, profile, name, email, password_hash, wallet_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + accountColumns
	row := s.pool.QueryRow(ctx, query,
		account.ID, account.Profile, account.Name, account.Email,
		account.PasswordHash, account.WalletAddress, account.CreatedAt)
	return scanAccount(row)
}

// FindByID fetches an account by its ID.
func (s *Store) FindByID(ctx context.Context, id string) (models.Account, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.pool.QueryRow(ctx, query, id))
}

// FindByEmail fetches an account by its normalized email address. This is the
// only read path that callers use to get the credential secret back.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(s.pool.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

// List returns every account ordered by creation time.
func (s *Store) List(ctx context.Context) ([]models.Account, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return accounts, nil
}

// Update applies the non-nil fields of upd to the account row and returns the
// updated record.
func (s *Store) Update(ctx context.Context, id string, upd storage.AccountUpdate) (models.Account, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	sets := []string{}
	args := []any{id}
	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		appendSet("name", *upd.Name)
	}
	if upd.Email != nil {
		appendSet("email", *upd.Email)
	}
	if upd.PasswordHash != nil {
		appendSet("password_hash", *upd.PasswordHash)
	}
	if upd.WalletAddress != nil {
		appendSet("wallet_address", *upd.WalletAddress)
	}
	if len(sets) == 0 {
		return s.FindByID(ctx, id)
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + accountColumns
	return scanAccount(s.pool.QueryRow(ctx, query, args...))
}

// Delete removes an account row by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.Profile, &account.Name, &account.Email,
		&account.PasswordHash, &account.WalletAddress, &account.CreatedAt)
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return account, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return storage.ErrUnavailable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return storage.ErrAlreadyExists
	}
	return err
}
