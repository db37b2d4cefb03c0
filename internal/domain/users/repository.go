package users

import (
	"context"
	"errors"
	"time"

	"github.com/siteflow/server/internal/auth"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ProviderCredential is the provider id of email/password accounts.
const ProviderCredential = "credential"

// Account links a user to a sign-in method. Password holds the bcrypt hash for
// credential accounts.
type Account struct {
	ID         string
	AccountID  string
	ProviderID string
	UserID     string
	Password   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Verification is a short-lived token record (email verification, password
// reset). Nothing issues them yet; expired rows are purged with sessions.
type Verification struct {
	ID         string
	Identifier string
	Value      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository persists auth records. Lookups return ErrNotFound when no row
// matches; CreateUserWithAccount returns ErrEmailTaken on a duplicate email.
type Repository interface {
	CreateUserWithAccount(ctx context.Context, user auth.User, account Account) error
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
	GetCredentialAccount(ctx context.Context, userID string) (*Account, error)

	CreateSession(ctx context.Context, session auth.Session) error
	GetSessionByToken(ctx context.Context, token string) (*auth.Session, error)
	GetSessionByID(ctx context.Context, id string) (*auth.Session, error)
	ExtendSession(ctx context.Context, id string, expiresAt, updatedAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error)
}
