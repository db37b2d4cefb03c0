// Package users implements email/password accounts and server-side sessions:
// sign-up, sign-in, sign-out and session resolution with sliding expiry.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/domain/ids"
	"github.com/siteflow/server/internal/procedure"
)

type Options struct {
	// SessionTTL is the lifetime of a new or refreshed session.
	SessionTTL time.Duration
	// UpdateAge is how old a session's expiry may get before it is pushed
	// forward by SessionTTL again.
	UpdateAge time.Duration
	Now       func() time.Time
}

type Service struct {
	repo   Repository
	opts   Options
	logger zerolog.Logger
}

func NewService(repo Repository, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:   repo,
		opts:   opts,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

var _ auth.SessionResolver = (*Service)(nil)

type SignUpParams struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"min=8,max=128"`
}

type SignInParams struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ClientInfo is recorded on new sessions.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// CreateUser registers a user with a credential account without signing in.
func (s *Service) CreateUser(ctx context.Context, params SignUpParams) (auth.User, error) {
	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)
	if err := procedure.ValidateStruct(params); err != nil {
		return auth.User{}, err
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return auth.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := auth.User{
		ID:        ids.MustULID(),
		Name:      params.Name,
		Email:     params.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := Account{
		ID:         ids.MustULID(),
		AccountID:  user.ID,
		ProviderID: ProviderCredential,
		UserID:     user.ID,
		Password:   &hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateUserWithAccount(ctx, user, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return auth.User{}, ErrEmailTaken
		}
		return auth.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user created")
	return user, nil
}

// SignUp creates the user and an initial session.
func (s *Service) SignUp(ctx context.Context, params SignUpParams, client ClientInfo) (auth.User, auth.Session, error) {
	user, err := s.CreateUser(ctx, params)
	if err != nil {
		return auth.User{}, auth.Session{}, err
	}
	session, err := s.startSession(ctx, user.ID, client)
	if err != nil {
		return auth.User{}, auth.Session{}, err
	}
	return user, session, nil
}

// SignIn checks credentials and starts a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, params SignInParams, client ClientInfo) (auth.User, auth.Session, error) {
	params.Email = normalizeEmail(params.Email)
	if err := procedure.ValidateStruct(params); err != nil {
		return auth.User{}, auth.Session{}, err
	}

	user, err := s.repo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown emails cost one bcrypt comparison, like a wrong password.
			_ = auth.CheckPassword(dummyHash(), params.Password)
			return auth.User{}, auth.Session{}, ErrInvalidCredentials
		}
		return auth.User{}, auth.Session{}, fmt.Errorf("get user: %w", err)
	}

	account, err := s.repo.GetCredentialAccount(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.User{}, auth.Session{}, ErrInvalidCredentials
		}
		return auth.User{}, auth.Session{}, fmt.Errorf("get credential account: %w", err)
	}
	if account.Password == nil {
		return auth.User{}, auth.Session{}, ErrInvalidCredentials
	}
	if err := auth.CheckPassword(*account.Password, params.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return auth.User{}, auth.Session{}, ErrInvalidCredentials
		}
		return auth.User{}, auth.Session{}, fmt.Errorf("check password: %w", err)
	}

	session, err := s.startSession(ctx, user.ID, client)
	if err != nil {
		return auth.User{}, auth.Session{}, err
	}
	return *user, session, nil
}

// SignOut revokes the session. Revoking an unknown session is not an error.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Service) SessionByToken(ctx context.Context, token string) (auth.Context, error) {
	session, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Context{}, auth.ErrNoSession
		}
		return auth.Context{}, fmt.Errorf("get session: %w", err)
	}
	return s.resolve(ctx, session)
}

func (s *Service) SessionByID(ctx context.Context, id string) (auth.Context, error) {
	session, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Context{}, auth.ErrNoSession
		}
		return auth.Context{}, fmt.Errorf("get session: %w", err)
	}
	return s.resolve(ctx, session)
}

// CleanupExpired deletes sessions and verifications that expired before now.
func (s *Service) CleanupExpired(ctx context.Context) (sessions, verifications int64, err error) {
	now := s.now()
	sessions, err = s.repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	verifications, err = s.repo.DeleteExpiredVerifications(ctx, now)
	if err != nil {
		return sessions, 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	return sessions, verifications, nil
}

func (s *Service) resolve(ctx context.Context, session *auth.Session) (auth.Context, error) {
	now := s.now()
	if session.Expired(now) {
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to delete expired session")
		}
		return auth.Context{}, auth.ErrNoSession
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Context{}, auth.ErrNoSession
		}
		return auth.Context{}, fmt.Errorf("get session user: %w", err)
	}

	ac := auth.Context{User: user, Session: session}
	if session.ExpiresAt.Sub(now) <= s.opts.SessionTTL-s.opts.UpdateAge {
		expiresAt := now.Add(s.opts.SessionTTL)
		if err := s.repo.ExtendSession(ctx, session.ID, expiresAt, now); err != nil {
			return auth.Context{}, fmt.Errorf("extend session: %w", err)
		}
		session.ExpiresAt = expiresAt
		session.UpdatedAt = now
		ac.Refreshed = true
	}
	return ac, nil
}

func (s *Service) startSession(ctx context.Context, userID string, client ClientInfo) (auth.Session, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		return auth.Session{}, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now()
	session := auth.Session{
		ID:        ids.MustULID(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(s.opts.SessionTTL),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return auth.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// now truncates to milliseconds, the resolution of the SQLite schema.
func (s *Service) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var dummyHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword(ids.MustULID())
	return hash
})
