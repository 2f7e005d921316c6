// Package memory provides a mutex-guarded in-memory AccountStore with the
// same email-uniqueness semantics as the Postgres store. It backs handler and
// middleware tests.
package memory

import (
	"context"
	"sync"

	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/storage"
)

var _ storage.AccountStore = (*Store)(nil)

// Store keeps accounts in process memory.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	byEmail  map[string]string
}

// NewAccountStore creates an empty in-memory store.
func NewAccountStore() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		byEmail:  make(map[string]string),
	}
}

// Insert stores a new account, enforcing email uniqueness.
func (s *Store) Insert(_ context.Context, account models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[account.Email]; taken {
		return models.Account{}, storage.ErrAlreadyExists
	}
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	return account, nil
}

// FindByID fetches an account by ID.
func (s *Store) FindByID(_ context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, storage.ErrNotFound
	}
	return account, nil
}

// FindByEmail fetches an account by normalized email.
func (s *Store) FindByEmail(_ context.Context, email string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return models.Account{}, storage.ErrNotFound
	}
	return s.accounts[id], nil
}

// List returns all stored accounts.
func (s *Store) List(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Update applies non-nil fields to the stored account.
func (s *Store) Update(_ context.Context, id string, upd storage.AccountUpdate) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, storage.ErrNotFound
	}
	if upd.Email != nil && *upd.Email != account.Email {
		if _, taken := s.byEmail[*upd.Email]; taken {
			return models.Account{}, storage.ErrAlreadyExists
		}
		delete(s.byEmail, account.Email)
		account.Email = *upd.Email
		s.byEmail[account.Email] = id
	}
	if upd.Name != nil {
		account.Name = *upd.Name
	}
	if upd.PasswordHash != nil {
		account.PasswordHash = *upd.PasswordHash
	}
	if upd.WalletAddress != nil {
		account.WalletAddress = upd.WalletAddress
	}
	s.accounts[id] = account
	return account, nil
}

// Delete removes an account by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byEmail, account.Email)
	delete(s.accounts, id)
	return nil
}
