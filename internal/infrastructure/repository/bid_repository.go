package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/database"
)

const bidColumns = `
	id, auction_id, bidder_id, amount::text, ts, is_winning,
	source_address, is_auto_bid, created_at`

// BidRepository persists bids in PostgreSQL.
type BidRepository struct {
	db *database.Pool
}

// NewBidRepository creates a bid repository.
func NewBidRepository(db *database.Pool) *BidRepository {
	return &BidRepository{db: db}
}

// InsertWinning records an accepted bid and moves the auction's current
// price forward in a single transaction: the previous winning bid is
// demoted, the new bid is inserted as winning, and the auction row is
// updated with an optimistic guard on updated_at. If another writer got
// there first the whole transaction rolls back with a Conflict error.
func (r *BidRepository) InsertWinning(ctx context.Context, b *bid.Bid, a *auction.Auction, priorUpdatedAt time.Time) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE bids SET is_winning = FALSE
			WHERE auction_id = $1 AND is_winning = TRUE`, b.AuctionID)
		if err != nil {
			return fmt.Errorf("failed to demote prior winning bid: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bids (
				id, auction_id, bidder_id, amount, ts, is_winning,
				source_address, is_auto_bid, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			b.ID, b.AuctionID, b.BidderID, b.Amount, b.Timestamp, b.IsWinning,
			nullIfEmpty(b.SourceAddress), b.IsAutoBid, b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		now := time.Now().UTC()
		tag, err := tx.Exec(ctx, `
			UPDATE auctions
			SET current_price = $2, updated_at = $3
			WHERE id = $1 AND updated_at = $4`,
			b.AuctionID, b.Amount, now, priorUpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to advance auction price: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errors.NewConflictError("auction was modified concurrently")
		}
		a.CurrentPrice = b.Amount
		a.UpdatedAt = now
		return nil
	})
	return err
}

// GetByID retrieves a bid by id.
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	row := r.db.Pgx().QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
	b, err := scanBid(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

// ListByAuction returns an auction's bids newest first.
func (r *BidRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	var total int
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	rows, err := r.db.Pgx().Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE auction_id = $1
		ORDER BY ts DESC
		LIMIT $2 OFFSET $3`, auctionID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

// ListByBidder returns a user's bids across all auctions, newest first.
func (r *BidRepository) ListByBidder(ctx context.Context, bidderID uuid.UUID, page, pageSize int) ([]*bid.Bid, int, error) {
	var total int
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE bidder_id = $1`, bidderID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	rows, err := r.db.Pgx().Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE bidder_id = $1
		ORDER BY ts DESC
		LIMIT $2 OFFSET $3`, bidderID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

// CountByAuction returns the number of bids on an auction.
func (r *BidRepository) CountByAuction(ctx context.Context, auctionID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bids: %w", err)
	}
	return count, nil
}

// GetTopBid returns the current top bid for an auction, or ErrBidNotFound
// when no bids exist.
func (r *BidRepository) GetTopBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	row := r.db.Pgx().QueryRow(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, ts ASC
		LIMIT 1`, auctionID)
	b, err := scanBid(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get top bid: %w", err)
	}
	return b, nil
}

func collectBids(rows pgx.Rows) ([]*bid.Bid, error) {
	var out []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBid(row pgx.Row) (*bid.Bid, error) {
	var b bid.Bid
	var amountStr string
	var sourceAddress *string

	err := row.Scan(
		&b.ID, &b.AuctionID, &b.BidderID, &amountStr, &b.Timestamp, &b.IsWinning,
		&sourceAddress, &b.IsAutoBid, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceAddress != nil {
		b.SourceAddress = *sourceAddress
	}
	if b.Amount, err = values.NewMoneyFromString(amountStr); err != nil {
		return nil, err
	}
	return &b, nil
}
