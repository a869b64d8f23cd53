package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/cache"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/lock"
)

// memStore is an in-memory store honoring the atomic insert-and-reprice
// contract, including the optimistic conflict guard.
type memStore struct {
	mu      sync.Mutex
	auction *auction.Auction
	bids    []*bid.Bid
}

func (m *memStore) GetWithTopBid(_ context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != id {
		return nil, nil, errors.ErrAuctionNotFound
	}
	a := *m.auction
	return &a, m.topLocked(), nil
}

func (m *memStore) topLocked() *bid.Bid {
	var top *bid.Bid
	for _, b := range m.bids {
		if top == nil || top.Amount.LessThan(b.Amount) {
			top = b
		}
	}
	if top == nil {
		return nil
	}
	cp := *top
	return &cp
}

func (m *memStore) InsertWinning(_ context.Context, b *bid.Bid, a *auction.Auction, priorUpdatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.auction.UpdatedAt.Equal(priorUpdatedAt) {
		return errors.NewConflictError("auction was modified concurrently")
	}
	for _, existing := range m.bids {
		existing.IsWinning = false
	}
	m.bids = append(m.bids, b)
	m.auction.CurrentPrice = b.Amount
	m.auction.UpdatedAt = m.auction.UpdatedAt.Add(time.Microsecond)
	a.CurrentPrice = b.Amount
	a.UpdatedAt = m.auction.UpdatedAt
	return nil
}

func (m *memStore) ListByAuction(_ context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*bid.Bid, 0, len(m.bids))
	for i := len(m.bids) - 1; i >= 0; i-- {
		if m.bids[i].AuctionID == auctionID {
			out = append(out, m.bids[i])
		}
	}
	return out, len(out), nil
}

func (m *memStore) ListByBidder(_ context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*bid.Bid
	for i := len(m.bids) - 1; i >= 0; i-- {
		if m.bids[i].BidderID == bidderID {
			out = append(out, m.bids[i])
		}
	}
	return out, len(out), nil
}

func (m *memStore) CountByAuction(_ context.Context, auctionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) winningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.bids {
		if b.IsWinning {
			count++
		}
	}
	return count
}

type sentEvent struct {
	target  uuid.UUID
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	rooms  []sentEvent
	direct []sentEvent
}

func (n *recordingNotifier) NotifyAuction(auctionID uuid.UUID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms = append(n.rooms, sentEvent{auctionID, event, payload})
}

func (n *recordingNotifier) NotifyUser(userID uuid.UUID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, sentEvent{userID, event, payload})
}

func (n *recordingNotifier) userEvents(userID uuid.UUID) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.direct {
		if e.target == userID {
			out = append(out, e)
		}
	}
	return out
}

// deniedLocker simulates an unavailable lock backend.
type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string, time.Duration, time.Duration) (string, error) {
	return "", lock.ErrNotAcquired
}
func (deniedLocker) Release(context.Context, string, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Lock: config.LockConfig{
			WaitBudget: 2 * time.Second,
			HoldTTL:    5 * time.Second,
			RetryDelay: time.Millisecond,
		},
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{BidsPerMinute: 100},
		},
	}
}

func activeAuction(t *testing.T, sellerID uuid.UUID) *auction.Auction {
	t.Helper()
	a, err := auction.NewAuction(
		sellerID, uuid.New(),
		"Vintage synthesizer", "1978 analog polysynth", "",
		values.MustNewMoneyFromString("100.00"),
		values.MustNewMoneyFromString("5.00"),
		nil,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour),
	)
	require.NoError(t, err)
	require.Equal(t, auction.StatusActive, a.Status)
	return a
}

func newTestService(store *memStore, notifier Notifier, locker lock.Locker) *Service {
	return NewService(store, store, locker, cache.NewLocalRateLimiter(), notifier,
		testConfig(), zap.NewNop())
}

func placeReq(a *auction.Auction, bidderID uuid.UUID, amount string) PlaceBidRequest {
	return PlaceBidRequest{
		AuctionID:     a.ID,
		BidderID:      bidderID,
		Amount:        values.MustNewMoneyFromString(amount),
		SourceAddress: "203.0.113.7",
	}
}

func TestPlaceBid_HappyPath(t *testing.T) {
	seller, bidder := uuid.New(), uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, lock.NewLocalLocker(time.Millisecond))

	result, err := svc.PlaceBid(context.Background(), placeReq(a, bidder, "100.00"))
	require.NoError(t, err)

	assert.Equal(t, "100.00", result.NewCurrentPrice.String())
	assert.Equal(t, 1, result.TotalBids)
	assert.True(t, result.Bid.IsWinning)
	assert.Nil(t, result.PreviousTopBidder)

	require.Len(t, notifier.rooms, 1)
	assert.Equal(t, EventNewBid, notifier.rooms[0].event)
	payload := notifier.rooms[0].payload.(NewBidEvent)
	assert.Equal(t, "100.00", payload.NewCurrentPrice)
	assert.Equal(t, 1, payload.TotalBids)

	assert.Empty(t, notifier.userEvents(bidder), "first bidder must not be outbid")
}

func TestPlaceBid_OutbidFanOut(t *testing.T) {
	seller, u1, u2 := uuid.New(), uuid.New(), uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, lock.NewLocalLocker(time.Millisecond))
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, placeReq(a, u1, "100.00"))
	require.NoError(t, err)

	result, err := svc.PlaceBid(ctx, placeReq(a, u2, "105.00"))
	require.NoError(t, err)
	assert.Equal(t, "105.00", result.NewCurrentPrice.String())
	assert.Equal(t, 2, result.TotalBids)
	require.NotNil(t, result.PreviousTopBidder)
	assert.Equal(t, u1, *result.PreviousTopBidder)

	events := notifier.userEvents(u1)
	require.Len(t, events, 1)
	assert.Equal(t, EventOutbid, events[0].event)
	outbid := events[0].payload.(OutbidEvent)
	assert.Equal(t, "100.00", outbid.YourBid)
	assert.Equal(t, "105.00", outbid.NewHighestBid)
	assert.Equal(t, "110.00", outbid.MinimumNextBid)

	assert.Equal(t, 1, store.winningCount())
}

func TestPlaceBid_Insufficient(t *testing.T) {
	seller, u1, u2 := uuid.New(), uuid.New(), uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, lock.NewLocalLocker(time.Millisecond))
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, placeReq(a, u1, "100.00"))
	require.NoError(t, err)
	eventsBefore := len(notifier.rooms)

	_, err = svc.PlaceBid(ctx, placeReq(a, u2, "104.00"))
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_BID", appErr.Code)
	assert.Equal(t, "105.00", appErr.Details["min_required"])

	assert.Len(t, notifier.rooms, eventsBefore, "rejected bid must emit nothing")
	count, _ := store.CountByAuction(ctx, a.ID)
	assert.Equal(t, 1, count)
	assert.Equal(t, "100.00", store.auction.CurrentPrice.String())
}

func TestPlaceBid_SelfBid(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))

	_, err := svc.PlaceBid(context.Background(), placeReq(a, seller, "100.00"))
	assert.ErrorIs(t, err, errors.ErrSelfBid)
}

func TestPlaceBid_NotActive(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	a.Status = auction.StatusPending
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))

	_, err := svc.PlaceBid(context.Background(), placeReq(a, uuid.New(), "100.00"))
	assert.ErrorIs(t, err, errors.ErrAuctionNotActive)
}

func TestPlaceBid_Ended(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))
	svc.now = func() time.Time { return a.EndAt.Add(time.Second) }

	_, err := svc.PlaceBid(context.Background(), placeReq(a, uuid.New(), "100.00"))
	assert.ErrorIs(t, err, errors.ErrAuctionEnded)
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))

	_, err := svc.PlaceBid(context.Background(), PlaceBidRequest{
		AuctionID: uuid.New(),
		BidderID:  uuid.New(),
		Amount:    values.MustNewMoneyFromString("100.00"),
	})
	assert.ErrorIs(t, err, errors.ErrAuctionNotFound)
}

// Twenty clients bid the same minimum simultaneously; exactly one wins.
func TestPlaceBid_ConcurrentBidders(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))
	ctx := context.Background()

	const bidders = 20
	var wg sync.WaitGroup
	results := make([]error, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceBid(ctx, placeReq(a, uuid.New(), "100.00"))
			results[i] = err
		}(i)
	}
	wg.Wait()

	accepted, insufficient := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			accepted++
		default:
			appErr, ok := err.(*errors.AppError)
			require.True(t, ok, "unexpected error: %v", err)
			require.Equal(t, "INSUFFICIENT_BID", appErr.Code)
			insufficient++
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, bidders-1, insufficient)
	count, _ := store.CountByAuction(ctx, a.ID)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, store.winningCount())
}

func TestPlaceBid_LockStarvation(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, deniedLocker{})
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, placeReq(a, uuid.New(), "100.00"))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err), "lock timeout must be retryable")
	assert.Equal(t, 503, errors.GetStatusCode(err))

	count, _ := store.CountByAuction(ctx, a.ID)
	assert.Equal(t, 0, count, "no bid may be recorded without the lock")
}

func TestPlaceBid_RateLimited(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))
	svc.bidsPerMinute = 2
	ctx := context.Background()
	bidder := uuid.New()

	_, err := svc.PlaceBid(ctx, placeReq(a, bidder, "100.00"))
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, placeReq(a, bidder, "105.00"))
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, placeReq(a, bidder, "110.00"))
	require.Error(t, err)
	assert.Equal(t, 429, errors.GetStatusCode(err))
}

func TestPlaceBid_RejectsNonPositiveAmount(t *testing.T) {
	seller := uuid.New()
	a := activeAuction(t, seller)
	store := &memStore{auction: a}
	svc := newTestService(store, &recordingNotifier{}, lock.NewLocalLocker(time.Millisecond))

	_, err := svc.PlaceBid(context.Background(), PlaceBidRequest{
		AuctionID: a.ID,
		BidderID:  uuid.New(),
		Amount:    values.Zero(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
