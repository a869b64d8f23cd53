package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/user"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/database"
)

const userColumns = `id, email, username, password_hash, created_at, updated_at`

// UserRepository persists user accounts in PostgreSQL.
type UserRepository struct {
	db *database.Pool
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *database.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. Duplicate email or username surfaces as a
// Conflict error.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.Pgx().Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("email or username already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.get(ctx, `id = $1`, id)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.get(ctx, `email = $1`, email)
}

func (r *UserRepository) get(ctx context.Context, where string, arg interface{}) (*user.User, error) {
	var u user.User
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
