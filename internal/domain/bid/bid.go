package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
)

// MaxSourceAddressLen bounds the recorded source address (fits IPv6).
const MaxSourceAddressLen = 45

// Bid is an immutable, timestamped offer against an auction. IsWinning is
// the only field ever toggled after creation, and only by the coordinator
// while it holds the auction lock.
type Bid struct {
	ID            uuid.UUID    `json:"id"`
	AuctionID     uuid.UUID    `json:"auction_id"`
	BidderID      uuid.UUID    `json:"bidder_id"`
	Amount        values.Money `json:"amount"`
	Timestamp     time.Time    `json:"timestamp"`
	IsWinning     bool         `json:"is_winning"`
	SourceAddress string       `json:"source_address,omitempty"`
	IsAutoBid     bool         `json:"is_auto_bid"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewBid constructs an accepted bid. The timestamp is assigned from the
// server clock at acceptance time; under the per-auction lock it reflects
// acceptance order.
func NewBid(auctionID, bidderID uuid.UUID, amount values.Money, sourceAddress string) (*Bid, error) {
	if auctionID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_AUCTION_ID", "auction id is required")
	}
	if bidderID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_BIDDER_ID", "bidder id is required")
	}
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "bid amount must be positive")
	}
	if len(sourceAddress) > MaxSourceAddressLen {
		sourceAddress = sourceAddress[:MaxSourceAddressLen]
	}

	now := time.Now().UTC()
	return &Bid{
		ID:            uuid.New(),
		AuctionID:     auctionID,
		BidderID:      bidderID,
		Amount:        amount,
		Timestamp:     now,
		IsWinning:     true,
		SourceAddress: sourceAddress,
		CreatedAt:     now,
	}, nil
}
