package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/category"
)

// AuctionStore persists auctions.
type AuctionStore interface {
	Create(ctx context.Context, a *auction.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	GetWithTopBid(ctx context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, error)
	Update(ctx context.Context, a *auction.Auction, priorUpdatedAt time.Time) error
	ListActive(ctx context.Context, page, pageSize int) ([]*auction.Auction, int, error)
	ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error)
	FindDue(ctx context.Context, limit int) ([]*auction.Auction, error)
	CountActive(ctx context.Context) (int, error)
}

// BidStore provides the bid reads lifecycle transitions depend on.
type BidStore interface {
	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int, error)
}

// CategoryStore persists categories.
type CategoryStore interface {
	Create(ctx context.Context, c *category.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*category.Category, error)
	List(ctx context.Context) ([]*category.Category, error)
}

// Notifier pushes real-time events to subscribers.
type Notifier interface {
	NotifyAuction(auctionID uuid.UUID, event string, payload interface{})
}

// Event names pushed by lifecycle transitions.
const (
	EventAuctionStatusChanged = "AuctionStatusChanged"
	EventAuctionEnded         = "AuctionEnded"
	EventTimerSync            = "TimerSync"
)

// StatusChangedEvent is broadcast to an auction's room on every lifecycle
// transition. WinnerBid is set only on completion.
type StatusChangedEvent struct {
	AuctionID uuid.UUID `json:"auction_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	WinnerBid *bid.Bid  `json:"winner_bid,omitempty"`
}

// TimerSyncEvent lets clients re-anchor their countdowns to the server
// clock.
type TimerSyncEvent struct {
	AuctionID     uuid.UUID `json:"auction_id"`
	EndAt         time.Time `json:"end_at"`
	TimeRemaining int64     `json:"time_remaining"`
	ServerTime    time.Time `json:"server_time"`
}
