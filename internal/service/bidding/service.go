// Package bidding serializes bid placement per auction behind a
// distributed lock and keeps the winning-bid and current-price
// invariants intact.
package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/cache"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/lock"
)

// PlaceBidRequest carries one bid submission.
type PlaceBidRequest struct {
	AuctionID     uuid.UUID
	BidderID      uuid.UUID
	Amount        values.Money
	SourceAddress string
}

// BidResult reports an accepted bid.
type BidResult struct {
	Bid               *bid.Bid
	NewCurrentPrice   values.Money
	MinimumNextBid    values.Money
	TotalBids         int
	PreviousTopBidder *uuid.UUID
}

// Service is the bid coordinator. All bid evaluation for a given auction
// runs inside that auction's critical section.
type Service struct {
	auctions    AuctionStore
	bids        BidStore
	locker      lock.Locker
	rateLimiter cache.RateLimiter
	notifier    Notifier
	logger      *zap.Logger
	tracer      trace.Tracer

	waitBudget    time.Duration
	holdTTL       time.Duration
	bidsPerMinute int

	now func() time.Time
}

// NewService creates the bid coordinator.
func NewService(
	auctions AuctionStore,
	bids BidStore,
	locker lock.Locker,
	rateLimiter cache.RateLimiter,
	notifier Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		auctions:      auctions,
		bids:          bids,
		locker:        locker,
		rateLimiter:   rateLimiter,
		notifier:      notifier,
		logger:        logger,
		tracer:        otel.Tracer("bidding"),
		waitBudget:    cfg.Lock.WaitBudget,
		holdTTL:       cfg.Lock.HoldTTL,
		bidsPerMinute: cfg.Security.RateLimit.BidsPerMinute,
		now:           time.Now,
	}
}

// PlaceBid evaluates a bid submission. The per-auction lock makes the
// read-validate-write sequence a serial critical section, so the minimum
// required amount derived from current_price is race-free even with many
// bidders on one auction.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error) {
	ctx, span := s.tracer.Start(ctx, "PlaceBid", trace.WithAttributes(
		attribute.String("auction.id", req.AuctionID.String()),
		attribute.String("bidder.id", req.BidderID.String()),
	))
	defer span.End()

	if !req.Amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "bid amount must be positive")
	}

	// Rate limit before competing for the lock, so hot bidders do not
	// burn lock wait budget on requests that will be rejected anyway.
	allowed, err := s.rateLimiter.Allow(ctx, "bid:"+req.BidderID.String(), s.bidsPerMinute, time.Minute)
	if err != nil {
		s.logger.Warn("bid rate limiter unavailable, allowing request",
			zap.String("bidder_id", req.BidderID.String()), zap.Error(err))
	} else if !allowed {
		bidsRejected.WithLabelValues("rate_limited").Inc()
		return nil, errors.NewRateLimitError("too many bids, slow down")
	}

	lockKey := req.AuctionID.String()
	token, err := s.locker.Acquire(ctx, lockKey, s.waitBudget, s.holdTTL)
	if err != nil {
		if err == lock.ErrNotAcquired {
			bidsRejected.WithLabelValues("lock_timeout").Inc()
			return nil, errors.ErrServerBusy
		}
		return nil, fmt.Errorf("acquiring auction lock: %w", err)
	}
	defer func() {
		// Release must run even when the request context is gone.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, lockKey, token); err != nil {
			s.logger.Warn("failed to release auction lock",
				zap.String("auction_id", lockKey), zap.Error(err))
		}
	}()

	start := s.now()
	result, err := s.placeBidLocked(ctx, req)
	criticalSectionDuration.Observe(s.now().Sub(start).Seconds())
	return result, err
}

func (s *Service) placeBidLocked(ctx context.Context, req PlaceBidRequest) (*BidResult, error) {
	a, top, err := s.auctions.GetWithTopBid(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.validate(req, a, top, now); err != nil {
		bidsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	newBid, err := bid.NewBid(req.AuctionID, req.BidderID, req.Amount, req.SourceAddress)
	if err != nil {
		return nil, err
	}

	priorUpdatedAt := a.UpdatedAt
	if err := s.bids.InsertWinning(ctx, newBid, a, priorUpdatedAt); err != nil {
		if errors.IsType(err, errors.ErrorTypeConflict) {
			bidsRejected.WithLabelValues("conflict").Inc()
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to record bid")
	}
	bidsAccepted.Inc()

	totalBids, err := s.bids.CountByAuction(ctx, req.AuctionID)
	if err != nil {
		s.logger.Warn("failed to count bids after acceptance",
			zap.String("auction_id", req.AuctionID.String()), zap.Error(err))
		totalBids = 0
	}

	minimumNext := req.Amount.Add(a.MinIncrement)
	s.emit(a, newBid, top, totalBids, minimumNext, now)

	result := &BidResult{
		Bid:             newBid,
		NewCurrentPrice: req.Amount,
		MinimumNextBid:  minimumNext,
		TotalBids:       totalBids,
	}
	if top != nil {
		bidderID := top.BidderID
		result.PreviousTopBidder = &bidderID
	}
	return result, nil
}

func (s *Service) validate(req PlaceBidRequest, a *auction.Auction, top *bid.Bid, now time.Time) error {
	if a.Status != auction.StatusActive {
		return errors.ErrAuctionNotActive
	}
	if !now.Before(a.EndAt) {
		return errors.ErrAuctionEnded
	}
	if req.BidderID == a.SellerID {
		return errors.ErrSelfBid
	}

	minRequired := a.MinimumNextBid(top != nil)
	if req.Amount.LessThan(minRequired) {
		return errors.NewBusinessError("INSUFFICIENT_BID",
			fmt.Sprintf("bid must be at least %s", minRequired)).
			WithDetails(map[string]interface{}{"min_required": minRequired.String()})
	}
	return nil
}

// emit pushes NewBid to the auction room and, when the top bidder changed,
// Outbid to the displaced bidder. Emission failures never fail the bid;
// the bid is already durable.
func (s *Service) emit(a *auction.Auction, newBid *bid.Bid, prevTop *bid.Bid, totalBids int, minimumNext values.Money, now time.Time) {
	s.notifier.NotifyAuction(a.ID, EventNewBid, NewBidEvent{
		AuctionID:       a.ID,
		Bid:             newBid,
		NewCurrentPrice: newBid.Amount.String(),
		TotalBids:       totalBids,
		TimeRemaining:   int64(a.TimeRemaining(now).Seconds()),
	})

	if prevTop != nil && prevTop.BidderID != newBid.BidderID {
		s.notifier.NotifyUser(prevTop.BidderID, EventOutbid, OutbidEvent{
			AuctionID:      a.ID,
			AuctionTitle:   a.Title,
			YourBid:        prevTop.Amount.String(),
			NewHighestBid:  newBid.Amount.String(),
			MinimumNextBid: minimumNext.String(),
		})
	}
}

// GetBidHistory returns an auction's bids, newest first.
func (s *Service) GetBidHistory(ctx context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	return s.bids.ListByAuction(ctx, auctionID, page, pageSize)
}

// GetUserBids returns a user's bids across auctions, newest first.
func (s *Service) GetUserBids(ctx context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	return s.bids.ListByBidder(ctx, bidderID, page, pageSize)
}

func rejectionReason(err error) string {
	switch {
	case errors.IsType(err, errors.ErrorTypeBusiness):
		if appErr, ok := err.(*errors.AppError); ok {
			switch appErr.Code {
			case "AUCTION_NOT_ACTIVE":
				return "not_active"
			case "AUCTION_ENDED":
				return "ended"
			case "SELF_BID":
				return "self_bid"
			case "INSUFFICIENT_BID":
				return "insufficient"
			}
		}
		return "business"
	case errors.IsType(err, errors.ErrorTypeValidation):
		return "validation"
	default:
		return "other"
	}
}
