package keygate

import (
	"context"
	"time"
)

// Account is a confirmed, durable user account.
type Account struct {
	ID           string
	Nickname     string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity returns the public fields of the account.
func (a Account) Identity() AccountIdentity {
	return AccountIdentity{ID: a.ID, Nickname: a.Nickname, DisplayName: a.DisplayName, Email: a.Email}
}

// AccountIdentity is an account without its credential material.
type AccountIdentity struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"username"`
	Email       string `json:"email"`
}

// RegistrationRequest is the input to Engine.Register.
type RegistrationRequest struct {
	Nickname        string
	DisplayName     string
	Email           string
	Password        string
	ConfirmPassword string
}

// PendingCode describes a code that was stored and sent. Code is returned
// for delivery purposes only and must never be echoed to the requester.
type PendingCode struct {
	Code      int
	Email     string
	ExpiresAt time.Time
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is returned by a successful Engine.Authenticate.
type LoginResult struct {
	Account AccountIdentity
	Tokens  TokenPair
}

// AccessToken is a freshly issued access token.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Principal is the verified subject of an access token.
type Principal struct {
	AccountID string
	TokenID   string
	ExpiresAt time.Time
}

// SecretStore holds short-lived secrets keyed by string with a TTL. A lapsed
// key must behave exactly like an absent one.
//
// Take must be atomic: among concurrent callers for one key, at most one
// receives the value. Get on an absent key returns an error satisfying
// errors.Is(err, ErrSecretAbsent).
type SecretStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	PutNew(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Take(ctx context.Context, key string) ([]byte, time.Duration, error)
}

// AccountStore is durable account storage.
//
// Lookups that match nothing return ErrAccountNotFound. Create and Save
// report a unique-attribute collision as a *ConflictError.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByNickname(ctx context.Context, nickname string) (Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
	Create(ctx context.Context, account Account) (Account, error)
	Save(ctx context.Context, account Account) error
}

// Notifier delivers a message to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PasswordHasher turns plaintext into a salted slow digest and checks it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}
