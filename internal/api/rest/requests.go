package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		_, err := values.NewMoneyFromString(fl.Field().String())
		return err == nil
	})
	return v
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type createAuctionRequest struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=2000"`
	ImageURL     string    `json:"image_url" validate:"omitempty,url,max=500"`
	CategoryID   string    `json:"category_id" validate:"required,uuid4"`
	StartPrice   string    `json:"starting_price" validate:"required,money"`
	MinIncrement string    `json:"min_increment" validate:"required,money"`
	ReservePrice string    `json:"reserve_price" validate:"omitempty,money"`
	StartAt      time.Time `json:"start_at" validate:"required"`
	EndAt        time.Time `json:"end_at" validate:"required"`
}

type placeBidRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

type createCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// decode parses and validates a JSON request body.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("INVALID_BODY", "request body is not valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return errors.NewValidationError("INVALID_FIELD",
				"invalid value for field "+verrs[0].Field())
		}
		return errors.NewValidationError("INVALID_BODY", "request validation failed")
	}
	return nil
}

// pagination reads page/pageSize query parameters with sane bounds.
func pagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		pageSize = v
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize
}
