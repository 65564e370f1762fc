// Package memory is an in-process keygate.AccountStore for tests and
// single-node development. Contents are lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/plextask/keygate"
)

// Store keeps accounts in maps guarded by one RWMutex, which also makes the
// uniqueness checks in Create and Save atomic.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]keygate.Account
	byEmail    map[string]string
	byNickname map[string]string
}

func New() *Store {
	return &Store{
		byID:       make(map[string]keygate.Account),
		byEmail:    make(map[string]string),
		byNickname: make(map[string]string),
	}
}

func (s *Store) FindByEmail(_ context.Context, email string) (keygate.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail, email)
}

func (s *Store) FindByNickname(_ context.Context, nickname string) (keygate.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byNickname, nickname)
}

func (s *Store) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *Store) ExistsByNickname(_ context.Context, nickname string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNickname[nickname]
	return ok, nil
}

func (s *Store) Create(_ context.Context, account keygate.Account) (keygate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNickname[account.Nickname]; ok {
		return keygate.Account{}, &keygate.ConflictError{Field: keygate.FieldNickname}
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return keygate.Account{}, &keygate.ConflictError{Field: keygate.FieldEmail}
	}
	if _, ok := s.byID[account.ID]; ok {
		return keygate.Account{}, &keygate.ConflictError{Field: "id"}
	}

	s.byID[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.byNickname[account.Nickname] = account.ID
	return account, nil
}

// Save replaces the stored account with the same ID.
func (s *Store) Save(_ context.Context, account keygate.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return keygate.ErrAccountNotFound
	}
	if id, taken := s.byEmail[account.Email]; taken && id != account.ID {
		return &keygate.ConflictError{Field: keygate.FieldEmail}
	}
	if id, taken := s.byNickname[account.Nickname]; taken && id != account.ID {
		return &keygate.ConflictError{Field: keygate.FieldNickname}
	}

	delete(s.byEmail, current.Email)
	delete(s.byNickname, current.Nickname)
	s.byID[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.byNickname[account.Nickname] = account.ID
	return nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) lookup(index map[string]string, key string) (keygate.Account, error) {
	id, ok := index[key]
	if !ok {
		return keygate.Account{}, keygate.ErrAccountNotFound
	}
	return s.byID[id], nil
}
