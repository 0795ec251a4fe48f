package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lodge-api/internal/model"
)

// TokenRepository persists refresh-token lineage rows. Only hashes of the
// signed tokens are stored; rows are marked used rather than deleted, so
// the history survives until the owning user is removed.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Insert records a freshly-issued refresh token. Issuing always inserts a
// new row; existing rows are never updated on issue.
func (r *TokenRepository) Insert(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, expires_at, user_id)
		 VALUES ($1, $2, $3)`,
		tokenHash, expiresAt, userID)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Rotate performs the check-and-mark step of a refresh exchange in one
// transaction, locking the user's latest row so concurrent exchanges of
// the same token cannot both succeed.
//
// Outcomes:
//   - nil: the presented hash was the latest unused row; it is now used.
//   - model.ErrRefreshTokenNotLatest: no row, or the hash is stale; every
//     row for the user has been revoked.
//   - model.ErrRefreshTokenAlreadyUsed: the latest row was already spent;
//     every row for the user has been revoked.
//
// Revocations are committed even though an error is returned: reuse
// detection must invalidate the lineage regardless of the failed exchange.
func (r *TokenRepository) Rotate(ctx context.Context, userID int64, presentedHash string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		latestID   int64
		latestHash string
		latestUsed bool
	)
	err = tx.QueryRow(ctx,
		`SELECT id, token_hash, is_used
		 FROM refresh_tokens
		 WHERE user_id = $1
		 ORDER BY expires_at DESC, id DESC
		 LIMIT 1
		 FOR UPDATE`, userID).Scan(&latestID, &latestHash, &latestUsed)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return r.revokeAllTx(ctx, tx, userID, model.ErrRefreshTokenNotLatest)
	case err != nil:
		return fmt.Errorf("fetch latest refresh token: %w", err)
	case latestHash != presentedHash:
		return r.revokeAllTx(ctx, tx, userID, model.ErrRefreshTokenNotLatest)
	case latestUsed:
		return r.revokeAllTx(ctx, tx, userID, model.ErrRefreshTokenAlreadyUsed)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET is_used = TRUE WHERE id = $1`, latestID); err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate tx: %w", err)
	}
	return nil
}

// RevokeAllForUser marks every refresh token for the user as used. Called
// on logout and when the coordinator detects an anomaly.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET is_used = TRUE WHERE user_id = $1 AND NOT is_used`,
		userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) revokeAllTx(ctx context.Context, tx pgx.Tx, userID int64, cause error) error {
	if _, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET is_used = TRUE WHERE user_id = $1 AND NOT is_used`,
		userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit revocation: %w", err)
	}
	return cause
}
