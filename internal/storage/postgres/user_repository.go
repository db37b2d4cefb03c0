package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/domain/users"
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ users.Repository = (*UserRepository)(nil)

func (r *UserRepository) CreateUserWithAccount(ctx context.Context, user auth.User, account users.Account) error {
	return r.withTx(ctx, func(q queryer) error {
		_, err := q.Exec(ctx, `
INSERT INTO "user" (id, name, email, email_verified, image, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, user.ID, user.Name, user.Email, user.EmailVerified, user.Image, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return users.ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = q.Exec(ctx, `
INSERT INTO account (id, account_id, provider_id, user_id, password, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, account.ID, account.AccountID, account.ProviderID, account.UserID, account.Password, account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
}

const userColumns = `id, name, email, email_verified, image, created_at, updated_at`

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) GetCredentialAccount(ctx context.Context, userID string) (*users.Account, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, account_id, provider_id, user_id, password, created_at, updated_at
  FROM account
 WHERE user_id = $1 AND provider_id = $2
 LIMIT 1
`, userID, users.ProviderCredential)

	var a users.Account
	if err := row.Scan(&a.ID, &a.AccountID, &a.ProviderID, &a.UserID, &a.Password, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get credential account: %w", err)
	}
	return &a, nil
}

func (r *UserRepository) CreateSession(ctx context.Context, s auth.Session) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO session (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, s.ID, s.Token, s.UserID, s.ExpiresAt, s.IPAddress, s.UserAgent, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, token, user_id, expires_at, coalesce(ip_address, ''), coalesce(user_agent, ''), created_at, updated_at`

func (r *UserRepository) GetSessionByToken(ctx context.Context, token string) (*auth.Session, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+sessionColumns+` FROM session WHERE token = $1`, token)
	return scanSession(row)
}

func (r *UserRepository) GetSessionByID(ctx context.Context, id string) (*auth.Session, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+sessionColumns+` FROM session WHERE id = $1`, id)
	return scanSession(row)
}

func (r *UserRepository) ExtendSession(ctx context.Context, id string, expiresAt, updatedAt time.Time) error {
	tag, err := r.queryer().Exec(ctx, `UPDATE session SET expires_at = $2, updated_at = $3 WHERE id = $1`, id, expiresAt, updatedAt)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.queryer().Exec(ctx, `DELETE FROM session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM session WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *UserRepository) DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM verification WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *UserRepository) withTx(ctx context.Context, fn func(queryer) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var s auth.Session
	if err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
