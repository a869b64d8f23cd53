package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hammerstone/live-auction-backend/internal/domain/category"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/database"
)

// CategoryRepository persists auction categories in PostgreSQL.
type CategoryRepository struct {
	db *database.Pool
}

// NewCategoryRepository creates a category repository.
func NewCategoryRepository(db *database.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create stores a new category. Duplicate names surface as a Conflict
// error.
func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.db.Pgx().Exec(ctx, `
		INSERT INTO categories (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Description, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("category name already exists")
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetByID retrieves a category by id.
func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*category.Category, error) {
	var c category.Category
	err := r.db.Pgx().QueryRow(ctx, `
		SELECT id, name, description, created_at
		FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]*category.Category, error) {
	rows, err := r.db.Pgx().Query(ctx, `
		SELECT id, name, description, created_at
		FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*category.Category
	for rows.Next() {
		var c category.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
