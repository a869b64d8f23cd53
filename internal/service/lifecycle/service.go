// Package lifecycle drives the auction state machine: creation,
// activation, cancellation, and the time-driven close.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/category"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/lock"
)

// CreateAuctionRequest carries the fields for a new auction.
type CreateAuctionRequest struct {
	SellerID     uuid.UUID
	CategoryID   uuid.UUID
	Title        string
	Description  string
	ImageURL     string
	StartPrice   values.Money
	MinIncrement values.Money
	ReservePrice *values.Money
	StartAt      time.Time
	EndAt        time.Time
}

// AuctionDetail is an auction with its derived bid facts.
type AuctionDetail struct {
	Auction        *auction.Auction
	TopBid         *bid.Bid
	TotalBids      int
	MinimumNextBid values.Money
}

// Service manages auction and category lifecycles. State transitions other
// than the time-driven close run under the same per-auction lock as bids,
// so a cancel can never race a bid acceptance.
type Service struct {
	auctions   AuctionStore
	bids       BidStore
	categories CategoryStore
	locker     lock.Locker
	notifier   Notifier
	logger     *zap.Logger

	waitBudget time.Duration
	holdTTL    time.Duration

	now func() time.Time
}

// NewService creates the lifecycle service.
func NewService(
	auctions AuctionStore,
	bids BidStore,
	categories CategoryStore,
	locker lock.Locker,
	notifier Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		auctions:   auctions,
		bids:       bids,
		categories: categories,
		locker:     locker,
		notifier:   notifier,
		logger:     logger,
		waitBudget: cfg.Lock.WaitBudget,
		holdTTL:    cfg.Lock.HoldTTL,
		now:        time.Now,
	}
}

// CreateAuction validates and stores a new auction. The initial status
// derives from the start time.
func (s *Service) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error) {
	if _, err := s.categories.GetByID(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	a, err := auction.NewAuction(
		req.SellerID, req.CategoryID,
		req.Title, req.Description, req.ImageURL,
		req.StartPrice, req.MinIncrement, req.ReservePrice,
		req.StartAt, req.EndAt,
	)
	if err != nil {
		return nil, err
	}

	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("auction created",
		zap.String("auction_id", a.ID.String()),
		zap.String("seller_id", a.SellerID.String()),
		zap.String("status", a.Status.String()))
	return a, nil
}

// GetAuction returns an auction with its top bid and bid count.
func (s *Service) GetAuction(ctx context.Context, id uuid.UUID) (*AuctionDetail, error) {
	a, top, err := s.auctions.GetWithTopBid(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := s.bids.CountByAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AuctionDetail{
		Auction:        a,
		TopBid:         top,
		TotalBids:      total,
		MinimumNextBid: a.MinimumNextBid(top != nil),
	}, nil
}

// ListActive returns active auctions ending soonest first.
func (s *Service) ListActive(ctx context.Context, categoryID *uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error) {
	if categoryID != nil {
		return s.auctions.ListActiveByCategory(ctx, *categoryID, page, pageSize)
	}
	return s.auctions.ListActive(ctx, page, pageSize)
}

// ListBySeller returns a seller's auctions, newest first.
func (s *Service) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error) {
	return s.auctions.ListBySeller(ctx, sellerID, page, pageSize)
}

// Activate moves a pending auction to active at the seller's request.
func (s *Service) Activate(ctx context.Context, auctionID, callerID uuid.UUID) (*auction.Auction, error) {
	var result *auction.Auction
	err := s.withLock(ctx, auctionID, func() error {
		a, err := s.auctions.GetByID(ctx, auctionID)
		if err != nil {
			return err
		}
		prior := a.UpdatedAt
		if err := a.Activate(callerID, s.now().UTC()); err != nil {
			return err
		}
		if err := s.auctions.Update(ctx, a, prior); err != nil {
			return err
		}
		s.notifier.NotifyAuction(a.ID, EventAuctionStatusChanged, StatusChangedEvent{
			AuctionID: a.ID,
			Status:    a.Status.String(),
			Message:   "auction is now live",
		})
		result = a
		return nil
	})
	return result, err
}

// Cancel cancels an auction that has no bids yet.
func (s *Service) Cancel(ctx context.Context, auctionID, callerID uuid.UUID) (*auction.Auction, error) {
	var result *auction.Auction
	err := s.withLock(ctx, auctionID, func() error {
		a, err := s.auctions.GetByID(ctx, auctionID)
		if err != nil {
			return err
		}
		bidCount, err := s.bids.CountByAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		prior := a.UpdatedAt
		if err := a.Cancel(callerID, bidCount, s.now().UTC()); err != nil {
			return err
		}
		if err := s.auctions.Update(ctx, a, prior); err != nil {
			return err
		}
		s.notifier.NotifyAuction(a.ID, EventAuctionStatusChanged, StatusChangedEvent{
			AuctionID: a.ID,
			Status:    a.Status.String(),
			Message:   "auction was cancelled by the seller",
		})
		result = a
		return nil
	})
	return result, err
}

// CloseDue materializes the end-of-auction transition for active auctions
// past their end time. Returns the number closed. Called by the sweeper.
func (s *Service) CloseDue(ctx context.Context, batch int) (int, error) {
	due, err := s.auctions.FindDue(ctx, batch)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, stale := range due {
		if err := s.closeOne(ctx, stale.ID); err != nil {
			// Another instance may have closed it first; move on.
			s.logger.Warn("failed to close due auction",
				zap.String("auction_id", stale.ID.String()), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *Service) closeOne(ctx context.Context, auctionID uuid.UUID) error {
	return s.withLock(ctx, auctionID, func() error {
		a, top, err := s.auctions.GetWithTopBid(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != auction.StatusActive {
			return nil // already closed elsewhere
		}

		var topBidID *uuid.UUID
		if top != nil {
			id := top.ID
			topBidID = &id
		}
		prior := a.UpdatedAt
		if err := a.Close(topBidID, s.now().UTC()); err != nil {
			return err
		}
		if err := s.auctions.Update(ctx, a, prior); err != nil {
			return err
		}

		event := StatusChangedEvent{
			AuctionID: a.ID,
			Status:    a.Status.String(),
			WinnerBid: top,
		}
		if a.Status == auction.StatusCompleted {
			event.Message = "auction completed"
		} else {
			event.Message = "auction ended without bids"
		}
		s.notifier.NotifyAuction(a.ID, EventAuctionEnded, event)
		return nil
	})
}

// TimerSync returns the authoritative countdown state for an auction.
func (s *Service) TimerSync(ctx context.Context, auctionID uuid.UUID) (*TimerSyncEvent, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &TimerSyncEvent{
		AuctionID:     a.ID,
		EndAt:         a.EndAt,
		TimeRemaining: int64(a.TimeRemaining(now).Seconds()),
		ServerTime:    now,
	}, nil
}

// CountActive returns the number of live auctions, for the stats broadcast.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	return s.auctions.CountActive(ctx)
}

// CreateCategory stores a new category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (*category.Category, error) {
	c, err := category.NewCategory(name, description)
	if err != nil {
		return nil, err
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCategory loads one category.
func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*category.Category, error) {
	return s.categories.GetByID(ctx, id)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]*category.Category, error) {
	return s.categories.List(ctx)
}

func (s *Service) withLock(ctx context.Context, auctionID uuid.UUID, fn func() error) error {
	key := auctionID.String()
	token, err := s.locker.Acquire(ctx, key, s.waitBudget, s.holdTTL)
	if err != nil {
		if err == lock.ErrNotAcquired {
			return errors.ErrServerBusy
		}
		return fmt.Errorf("acquiring auction lock: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn("failed to release auction lock",
				zap.String("auction_id", key), zap.Error(err))
		}
	}()
	return fn()
}
