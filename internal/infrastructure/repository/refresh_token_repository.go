package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/user"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/database"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at`

// RefreshTokenRepository persists refresh tokens for rotation and
// reuse detection.
type RefreshTokenRepository struct {
	db *database.Pool
}

// NewRefreshTokenRepository creates a refresh token repository.
func NewRefreshTokenRepository(db *database.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *user.RefreshToken) error {
	_, err := r.db.Pgx().Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByHash retrieves a refresh token record by its storage hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error) {
	var t user.RefreshToken
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedBy, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewUnauthorizedError("refresh token not recognized")
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &t, nil
}

// Rotate marks the old token as revoked and replaced, then stores its
// successor, atomically. The guard on revoked_at makes concurrent
// rotations of the same token lose cleanly.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *user.RefreshToken) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = $2, replaced_by = $3
			WHERE id = $1 AND revoked_at IS NULL`,
			oldID, time.Now().UTC(), next.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errors.NewConflictError("refresh token already rotated")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
		return nil
	})
}

// Revoke marks a single refresh token as revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pgx().Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live refresh token belonging to a user.
// Used when a revoked token is presented again, which signals theft of
// the token family.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pgx().Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is older than the cutoff.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pgx().Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
