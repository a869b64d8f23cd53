package auction_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/testutil/fixtures"
)

func TestNewAuction_StatusDerivation(t *testing.T) {
	live := fixtures.NewAuction(t).Build()
	assert.Equal(t, auction.StatusActive, live.Status)
	assert.True(t, live.CurrentPrice.Equal(live.StartPrice))

	pending := fixtures.NewAuction(t).Scheduled().Build()
	assert.Equal(t, auction.StatusPending, pending.Status)
}

func TestNewAuction_Validation(t *testing.T) {
	seller, cat := uuid.New(), uuid.New()
	price := values.MustNewMoneyFromString("100.00")
	inc := values.MustNewMoneyFromString("5.00")
	start := time.Now()
	end := start.Add(time.Hour)

	_, err := auction.NewAuction(seller, cat, "", "", "", price, inc, nil, start, end)
	assert.Error(t, err, "empty title")

	_, err = auction.NewAuction(seller, cat, strings.Repeat("x", 201), "", "", price, inc, nil, start, end)
	assert.Error(t, err, "title too long")

	_, err = auction.NewAuction(seller, cat, "ok", "", "", values.Zero(), inc, nil, start, end)
	assert.Error(t, err, "zero start price")

	_, err = auction.NewAuction(seller, cat, "ok", "", "", price, inc, nil, end, start)
	assert.Error(t, err, "end before start")

	_, err = auction.NewAuction(seller, cat, "ok", "", "", price, inc, nil,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	assert.Error(t, err, "start beyond clock-skew tolerance")

	// Within the five-minute tolerance the start time is accepted.
	_, err = auction.NewAuction(seller, cat, "ok", "", "", price, inc, nil,
		time.Now().Add(-4*time.Minute), time.Now().Add(time.Hour))
	assert.NoError(t, err)
}

func TestStatus_Transitions(t *testing.T) {
	t.Run("activate", func(t *testing.T) {
		a := fixtures.NewAuction(t).Scheduled().Build()
		now := time.Now()

		require.Error(t, a.Activate(uuid.New(), now), "only the seller may activate")
		require.NoError(t, a.Activate(a.SellerID, now))
		assert.Equal(t, auction.StatusActive, a.Status)
		assert.WithinDuration(t, now, a.StartAt, time.Second)

		assert.Error(t, a.Activate(a.SellerID, now), "already active")
	})

	t.Run("cancel", func(t *testing.T) {
		a := fixtures.NewAuction(t).Build()
		now := time.Now()

		require.Error(t, a.Cancel(a.SellerID, 1, now), "bids block cancellation")
		require.NoError(t, a.Cancel(a.SellerID, 0, now))
		assert.Equal(t, auction.StatusCancelled, a.Status)
		assert.True(t, a.Status.IsTerminal())

		assert.Error(t, a.Cancel(a.SellerID, 0, now), "terminal state")
	})

	t.Run("close with winner", func(t *testing.T) {
		a := fixtures.NewAuction(t).Build()
		winner := uuid.New()

		require.Error(t, a.Close(&winner, time.Now()), "end time not reached")

		after := a.EndAt.Add(time.Second)
		require.NoError(t, a.Close(&winner, after))
		assert.Equal(t, auction.StatusCompleted, a.Status)
		require.NotNil(t, a.WinnerBidID)
		assert.Equal(t, winner, *a.WinnerBidID)
	})

	t.Run("close without bids expires", func(t *testing.T) {
		a := fixtures.NewAuction(t).Build()
		require.NoError(t, a.Close(nil, a.EndAt.Add(time.Second)))
		assert.Equal(t, auction.StatusExpired, a.Status)
		assert.Nil(t, a.WinnerBidID)
	})
}

func TestMinimumNextBid(t *testing.T) {
	a := fixtures.NewAuction(t).WithStartPrice("100.00").WithMinIncrement("5.00").Build()

	assert.Equal(t, "100.00", a.MinimumNextBid(false).String(), "first bid may equal the start price")

	a.CurrentPrice = values.MustNewMoneyFromString("120.00")
	assert.Equal(t, "125.00", a.MinimumNextBid(true).String())
}

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, s := range []auction.Status{
		auction.StatusPending, auction.StatusActive, auction.StatusCompleted,
		auction.StatusCancelled, auction.StatusExpired,
	} {
		assert.Equal(t, s, auction.ParseStatus(s.String()))
	}
}

func TestTimeRemaining(t *testing.T) {
	a := fixtures.NewAuction(t).Build()
	assert.Greater(t, a.TimeRemaining(time.Now()), time.Duration(0))
	assert.Equal(t, time.Duration(0), a.TimeRemaining(a.EndAt.Add(time.Minute)))
}
