package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lodge-api/internal/model"
)

const userColumns = `users.id, users.name, users.email, users.password, users.role_id,
	        roles.name, users.reset_token, users.reset_token_expiration,
	        users.created_at, users.updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users INNER JOIN roles ON users.role_id = roles.id
		 WHERE users.id = $1`, id)
	return scanUser(row)
}

// FindByEmail matches case-insensitively; emails are stored lower-cased
// but lookups normalize anyway so mixed-case rows still resolve.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users INNER JOIN roles ON users.role_id = roles.id
		 WHERE lower(users.email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (r *UserRepository) FindByResetToken(ctx context.Context, resetToken string) (model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users INNER JOIN roles ON users.role_id = roles.id
		 WHERE users.reset_token = $1`, resetToken)
	return scanUser(row)
}

func (r *UserRepository) Create(ctx context.Context, name string, email string, roleID int) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, role_id, created_at, updated_at)
		 VALUES ($1, lower($2), $3, now(), now())
		 RETURNING id`,
		name, strings.TrimSpace(email), roleID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// SetResetToken starts the PENDING reset window for a user.
func (r *UserRepository) SetResetToken(ctx context.Context, userID int64, resetToken string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET reset_token = $2, reset_token_expiration = $3, updated_at = now()
		 WHERE id = $1`,
		userID, resetToken, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// SetPassword stores a new password hash and consumes the reset token.
func (r *UserRepository) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET password = $2, reset_token = NULL, reset_token_expiration = NULL, updated_at = now()
		 WHERE id = $1`,
		userID, passwordHash)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID,
		&u.RoleName, &u.ResetToken, &u.ResetTokenExpiration, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
