package category

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
)

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCategory creates a category. Name uniqueness is enforced by the store.
func NewCategory(name, description string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, errors.NewValidationError("INVALID_CATEGORY_NAME", "category name must be 1-100 characters")
	}
	if len(description) > 2000 {
		return nil, errors.NewValidationError("INVALID_DESCRIPTION", "description must be at most 2000 characters")
	}

	return &Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
