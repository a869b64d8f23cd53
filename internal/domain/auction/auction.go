package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
)

// ClockSkewTolerance is how far in the past a new auction's start time may
// lie and still be accepted.
const ClockSkewTolerance = 5 * time.Minute

type Auction struct {
	ID           uuid.UUID    `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ImageURL     string       `json:"image_url,omitempty"`
	SellerID     uuid.UUID    `json:"seller_id"`
	CategoryID   uuid.UUID    `json:"category_id"`
	StartPrice   values.Money `json:"starting_price"`
	CurrentPrice values.Money `json:"current_price"`
	// ReservePrice is never disclosed through the API.
	ReservePrice *values.Money `json:"-"`
	MinIncrement values.Money  `json:"min_increment"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        time.Time     `json:"end_at"`
	Status       Status        `json:"status"`
	WinnerBidID  *uuid.UUID    `json:"winner_bid_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "active":
		return StatusActive
	case "completed":
		return StatusCompleted
	case "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return StatusPending
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// NewAuction creates an auction. The initial status is derived from the
// start time: auctions starting now or in the past open immediately.
func NewAuction(sellerID, categoryID uuid.UUID, title, description, imageURL string,
	startPrice, minIncrement values.Money, reservePrice *values.Money,
	startAt, endAt time.Time) (*Auction, error) {

	now := time.Now().UTC()

	if title == "" || len(title) > 200 {
		return nil, errors.NewValidationError("INVALID_TITLE", "title must be 1-200 characters")
	}
	if len(description) > 2000 {
		return nil, errors.NewValidationError("INVALID_DESCRIPTION", "description must be at most 2000 characters")
	}
	if len(imageURL) > 500 {
		return nil, errors.NewValidationError("INVALID_IMAGE_URL", "image url must be at most 500 characters")
	}
	if !startPrice.IsPositive() {
		return nil, errors.NewValidationError("INVALID_START_PRICE", "starting price must be positive")
	}
	if !minIncrement.IsPositive() {
		return nil, errors.NewValidationError("INVALID_MIN_INCREMENT", "minimum increment must be positive")
	}
	if !endAt.After(startAt) {
		return nil, errors.NewValidationError("INVALID_TIME_RANGE", "end time must be after start time")
	}
	if startAt.Before(now.Add(-ClockSkewTolerance)) {
		return nil, errors.NewValidationError("START_IN_PAST", "start time is too far in the past")
	}

	status := StatusPending
	if !startAt.After(now) {
		status = StatusActive
	}

	return &Auction{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		ImageURL:     imageURL,
		SellerID:     sellerID,
		CategoryID:   categoryID,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		ReservePrice: reservePrice,
		MinIncrement: minIncrement,
		StartAt:      startAt,
		EndAt:        endAt,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Activate transitions Pending -> Active, moving the start time to now.
func (a *Auction) Activate(callerID uuid.UUID, now time.Time) error {
	if callerID != a.SellerID {
		return errors.NewForbiddenError("only the seller can activate an auction")
	}
	if a.Status != StatusPending {
		return errors.NewBusinessError("NOT_PENDING", "only pending auctions can be activated")
	}
	if !a.EndAt.After(now) {
		return errors.ErrAuctionEnded
	}
	a.Status = StatusActive
	a.StartAt = now
	a.UpdatedAt = now
	return nil
}

// Cancel transitions Pending/Active -> Cancelled. The caller must already
// have verified that no bids exist; a cancelled auction has zero bids.
func (a *Auction) Cancel(callerID uuid.UUID, bidCount int, now time.Time) error {
	if callerID != a.SellerID {
		return errors.NewForbiddenError("only the seller can cancel an auction")
	}
	if a.Status.IsTerminal() {
		return errors.NewBusinessError("ALREADY_CLOSED", "auction is already closed")
	}
	if bidCount > 0 {
		return errors.NewBusinessError("HAS_BIDS", "cannot cancel an auction with bids")
	}
	a.Status = StatusCancelled
	a.UpdatedAt = now
	return nil
}

// Close materializes the end-of-auction transition once end time is reached.
// With a top bid the auction completes and records the winner; without one
// it expires.
func (a *Auction) Close(topBidID *uuid.UUID, now time.Time) error {
	if a.Status != StatusActive {
		return errors.NewBusinessError("NOT_ACTIVE", "only active auctions can be closed")
	}
	if now.Before(a.EndAt) {
		return errors.NewBusinessError("NOT_ENDED", "auction end time has not been reached")
	}
	if topBidID != nil {
		a.Status = StatusCompleted
		a.WinnerBidID = topBidID
	} else {
		a.Status = StatusExpired
	}
	a.UpdatedAt = now
	return nil
}

// MinimumNextBid computes the lowest acceptable bid amount given the current
// top bid. The first bid may equal the starting price; later bids must clear
// the current price by at least the minimum increment.
func (a *Auction) MinimumNextBid(hasBids bool) values.Money {
	if !hasBids {
		return a.StartPrice
	}
	return a.CurrentPrice.Add(a.MinIncrement)
}

// TimeRemaining returns the time until end, floored at zero.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if now.After(a.EndAt) {
		return 0
	}
	return a.EndAt.Sub(now)
}
