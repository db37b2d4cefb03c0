package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/domain/users"
)

type UserRepository struct {
	db *sql.DB
}

var _ users.Repository = (*UserRepository)(nil)

func (r *UserRepository) CreateUserWithAccount(ctx context.Context, user auth.User, account users.Account) error {
	return r.withTx(ctx, func(q queryer) error {
		_, err := q.ExecContext(ctx, `
INSERT INTO "user" (id, name, email, email_verified, image, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, user.ID, user.Name, user.Email, user.EmailVerified, user.Image, toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return users.ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = q.ExecContext(ctx, `
INSERT INTO account (id, account_id, provider_id, user_id, password, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, account.ID, account.AccountID, account.ProviderID, account.UserID, account.Password, toMillis(account.CreatedAt), toMillis(account.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
}

const userColumns = `id, name, email, email_verified, image, created_at, updated_at`

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM "user" WHERE email = ?`, email))
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = ?`, id))
}

func (r *UserRepository) GetCredentialAccount(ctx context.Context, userID string) (*users.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, account_id, provider_id, user_id, password, created_at, updated_at
  FROM account
 WHERE user_id = ? AND provider_id = ?
 LIMIT 1
`, userID, users.ProviderCredential)

	var (
		a                users.Account
		created, updated   int64
	)
	if err := row.Scan(&a.ID, &a.AccountID, &a.ProviderID, &a.UserID, &a.Password, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get credential account: %w", err)
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func (r *UserRepository) CreateSession(ctx context.Context, s auth.Session) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO session (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, s.ID, s.Token, s.UserID, toMillis(s.ExpiresAt), s.IPAddress, s.UserAgent, toMillis(s.CreatedAt), toMillis(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, token, user_id, expires_at, coalesce(ip_address, ''), coalesce(user_agent, ''), created_at, updated_at`

func (r *UserRepository) GetSessionByToken(ctx context.Context, token string) (*auth.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session WHERE token = ?`, token))
}

func (r *UserRepository) GetSessionByID(ctx context.Context, id string) (*auth.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session WHERE id = ?`, id))
}

func (r *UserRepository) ExtendSession(ctx context.Context, id string, expiresAt, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE session SET expires_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(expiresAt), toMillis(updatedAt), id)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return rowsAffected(res)
}

func (r *UserRepository) DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	return rowsAffected(res)
}

func (r *UserRepository) withTx(ctx context.Context, fn func(queryer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u                auth.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func scanSession(row *sql.Row) (*auth.Session, error) {
	var (
		s                         auth.Session
		expires, created, updated int64
	)
	if err := row.Scan(&s.ID, &s.Token, &s.UserID, &expires, &s.IPAddress, &s.UserAgent, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.ExpiresAt = fromMillis(expires)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}
