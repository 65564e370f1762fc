package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/plextask/keygate"
)

const (
	constraintNickname = "accounts_nickname_key"
	constraintEmail    = "accounts_email_key"
)

// Store implements keygate.AccountStore on the accounts table.
type Store struct{ db *DB }

func NewStore(db *DB) *Store { return &Store{db: db} }

const selectAccount = `
SELECT id, nickname, display_name, email, password_hash, created_at
FROM accounts`

func (s *Store) FindByEmail(ctx context.Context, email string) (keygate.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE email=$1`, email)
}

func (s *Store) FindByNickname(ctx context.Context, nickname string) (keygate.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE nickname=$1`, nickname)
}

func (s *Store) findOne(ctx context.Context, q string, arg string) (keygate.Account, error) {
	var a keygate.Account
	err := s.db.Pool.QueryRow(ctx, q, arg).
		Scan(&a.ID, &a.Nickname, &a.DisplayName, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return keygate.Account{}, keygate.ErrAccountNotFound
	}
	if err != nil {
		return keygate.Account{}, err
	}
	return a, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email=$1)`, email)
}

func (s *Store) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE nickname=$1)`, nickname)
}

func (s *Store) exists(ctx context.Context, q string, arg string) (bool, error) {
	var ok bool
	if err := s.db.Pool.QueryRow(ctx, q, arg).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Create inserts account. The unique constraints on nickname and email are
// the final arbiter when two confirmations race.
func (s *Store) Create(ctx context.Context, account keygate.Account) (keygate.Account, error) {
	const q = `
INSERT INTO accounts (id, nickname, display_name, email, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Pool.Exec(ctx, q,
		account.ID, account.Nickname, account.DisplayName, account.Email, account.PasswordHash, account.CreatedAt)
	if err != nil {
		return keygate.Account{}, translate(err)
	}
	return account, nil
}

// Save overwrites the mutable columns of an existing account.
func (s *Store) Save(ctx context.Context, account keygate.Account) error {
	const q = `
UPDATE accounts
SET nickname = $2, display_name = $3, email = $4, password_hash = $5
WHERE id = $1`
	tag, err := s.db.Pool.Exec(ctx, q,
		account.ID, account.Nickname, account.DisplayName, account.Email, account.PasswordHash)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return keygate.ErrAccountNotFound
	}
	return nil
}

func translate(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintEmail:
		return &keygate.ConflictError{Field: keygate.FieldEmail}
	default:
		return &keygate.ConflictError{Field: keygate.FieldNickname}
	}
}
