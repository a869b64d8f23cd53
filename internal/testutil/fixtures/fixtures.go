// Package fixtures provides builders for domain objects in tests.
package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/user"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
)

// AuctionBuilder builds test auctions.
type AuctionBuilder struct {
	t            *testing.T
	sellerID     uuid.UUID
	categoryID   uuid.UUID
	title        string
	startPrice   values.Money
	minIncrement values.Money
	reserve      *values.Money
	startAt      time.Time
	endAt        time.Time
}

// NewAuction returns a builder for a live auction starting at 100.00
// with a 5.00 increment.
func NewAuction(t *testing.T) *AuctionBuilder {
	return &AuctionBuilder{
		t:            t,
		sellerID:     uuid.New(),
		categoryID:   uuid.New(),
		title:        "Vintage synthesizer",
		startPrice:   values.MustNewMoneyFromString("100.00"),
		minIncrement: values.MustNewMoneyFromString("5.00"),
		startAt:      time.Now().Add(-time.Minute),
		endAt:        time.Now().Add(time.Hour),
	}
}

func (b *AuctionBuilder) WithSeller(id uuid.UUID) *AuctionBuilder {
	b.sellerID = id
	return b
}

func (b *AuctionBuilder) WithCategory(id uuid.UUID) *AuctionBuilder {
	b.categoryID = id
	return b
}

func (b *AuctionBuilder) WithTitle(title string) *AuctionBuilder {
	b.title = title
	return b
}

func (b *AuctionBuilder) WithStartPrice(amount string) *AuctionBuilder {
	b.startPrice = values.MustNewMoneyFromString(amount)
	return b
}

func (b *AuctionBuilder) WithMinIncrement(amount string) *AuctionBuilder {
	b.minIncrement = values.MustNewMoneyFromString(amount)
	return b
}

func (b *AuctionBuilder) WithReservePrice(amount string) *AuctionBuilder {
	m := values.MustNewMoneyFromString(amount)
	b.reserve = &m
	return b
}

// Scheduled moves the start into the future, yielding a pending auction.
func (b *AuctionBuilder) Scheduled() *AuctionBuilder {
	b.startAt = time.Now().Add(time.Hour)
	b.endAt = time.Now().Add(2 * time.Hour)
	return b
}

func (b *AuctionBuilder) WithWindow(startAt, endAt time.Time) *AuctionBuilder {
	b.startAt = startAt
	b.endAt = endAt
	return b
}

func (b *AuctionBuilder) Build() *auction.Auction {
	b.t.Helper()
	a, err := auction.NewAuction(
		b.sellerID, b.categoryID,
		b.title, "1978 analog polysynth", "",
		b.startPrice, b.minIncrement, b.reserve,
		b.startAt, b.endAt,
	)
	require.NoError(b.t, err)
	return a
}

// BidBuilder builds test bids.
type BidBuilder struct {
	t             *testing.T
	auctionID     uuid.UUID
	bidderID      uuid.UUID
	amount        values.Money
	sourceAddress string
}

// NewBid returns a builder for a 100.00 bid.
func NewBid(t *testing.T) *BidBuilder {
	return &BidBuilder{
		t:         t,
		auctionID: uuid.New(),
		bidderID:  uuid.New(),
		amount:    values.MustNewMoneyFromString("100.00"),
	}
}

func (b *BidBuilder) ForAuction(id uuid.UUID) *BidBuilder {
	b.auctionID = id
	return b
}

func (b *BidBuilder) ByBidder(id uuid.UUID) *BidBuilder {
	b.bidderID = id
	return b
}

func (b *BidBuilder) WithAmount(amount string) *BidBuilder {
	b.amount = values.MustNewMoneyFromString(amount)
	return b
}

func (b *BidBuilder) FromAddress(addr string) *BidBuilder {
	b.sourceAddress = addr
	return b
}

func (b *BidBuilder) Build() *bid.Bid {
	b.t.Helper()
	newBid, err := bid.NewBid(b.auctionID, b.bidderID, b.amount, b.sourceAddress)
	require.NoError(b.t, err)
	return newBid
}

// NewUser builds a test user with a placeholder password hash.
func NewUser(t *testing.T, email, username string) *user.User {
	t.Helper()
	u, err := user.NewUser(email, username, "$2a$10$placeholderplaceholderplace")
	require.NoError(t, err)
	return u
}
