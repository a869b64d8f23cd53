package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
)

// AuctionStore provides the consistent auction reads the coordinator needs.
type AuctionStore interface {
	// GetWithTopBid loads the auction and its current top bid in one
	// consistent read. Top bid is nil when no bids exist.
	GetWithTopBid(ctx context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, error)
}

// BidStore persists accepted bids.
type BidStore interface {
	// InsertWinning atomically demotes the prior winning bid, inserts the
	// new one, and advances the auction's current price. Returns a
	// Conflict error if the auction row changed since priorUpdatedAt.
	InsertWinning(ctx context.Context, b *bid.Bid, a *auction.Auction, priorUpdatedAt time.Time) error
	ListByAuction(ctx context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error)
	ListByBidder(ctx context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error)
	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int, error)
}

// Notifier pushes real-time events to subscribers. Implementations must
// not block the caller beyond a bounded enqueue.
type Notifier interface {
	NotifyAuction(auctionID uuid.UUID, event string, payload interface{})
	NotifyUser(userID uuid.UUID, event string, payload interface{})
}

// Event names pushed by the coordinator.
const (
	EventNewBid = "NewBid"
	EventOutbid = "Outbid"
)

// NewBidEvent is broadcast to an auction's room after a bid is accepted.
type NewBidEvent struct {
	AuctionID       uuid.UUID `json:"auction_id"`
	Bid             *bid.Bid  `json:"bid"`
	NewCurrentPrice string    `json:"new_current_price"`
	TotalBids       int       `json:"total_bids"`
	TimeRemaining   int64     `json:"time_remaining"`
}

// OutbidEvent is sent to the previous top bidder only.
type OutbidEvent struct {
	AuctionID      uuid.UUID `json:"auction_id"`
	AuctionTitle   string    `json:"auction_title"`
	YourBid        string    `json:"your_bid"`
	NewHighestBid  string    `json:"new_highest_bid"`
	MinimumNextBid string    `json:"minimum_next_bid"`
}
