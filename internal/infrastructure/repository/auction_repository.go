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

// Monetary columns are selected with ::text casts so the exact decimal
// representation reaches the Money scanner untouched.
const auctionColumns = `
	id, title, description, image_url, seller_id, category_id,
	starting_price::text, current_price::text, reserve_price::text, min_increment::text,
	start_at, end_at, status, winner_bid_id, created_at, updated_at`

// AuctionRepository persists auctions in PostgreSQL.
type AuctionRepository struct {
	db *database.Pool
}

// NewAuctionRepository creates an auction repository.
func NewAuctionRepository(db *database.Pool) *AuctionRepository {
	return &AuctionRepository{db: db}
}

// Create stores a new auction.
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (
			id, title, description, image_url, seller_id, category_id,
			starting_price, current_price, reserve_price, min_increment,
			start_at, end_at, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`

	var reserve interface{}
	if a.ReservePrice != nil {
		reserve = *a.ReservePrice
	}

	_, err := r.db.Pgx().Exec(ctx, query,
		a.ID, a.Title, a.Description, nullIfEmpty(a.ImageURL), a.SellerID, a.CategoryID,
		a.StartPrice, a.CurrentPrice, reserve, a.MinIncrement,
		a.StartAt, a.EndAt, a.Status.String(), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.ErrCategoryNotFound
		}
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

// GetByID retrieves an auction by id.
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	row := r.db.Pgx().QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

// GetWithTopBid loads an auction and its current top bid in one consistent
// read. The top bid is the maximum amount, earliest timestamp winning ties.
func (r *AuctionRepository) GetWithTopBid(ctx context.Context, id uuid.UUID) (*auction.Auction, *bid.Bid, error) {
	var a *auction.Auction
	var top *bid.Bid

	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
		var err error
		a, err = scanAuction(row)
		if err != nil {
			return err
		}

		row = tx.QueryRow(ctx, `
			SELECT `+bidColumns+`
			FROM bids
			WHERE auction_id = $1
			ORDER BY amount DESC, ts ASC
			LIMIT 1`, id)
		top, err = scanBid(row)
		if err == pgx.ErrNoRows {
			top = nil
			return nil
		}
		return err
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, errors.ErrAuctionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load auction with top bid: %w", err)
	}
	return a, top, nil
}

// Update persists lifecycle mutations (status, start/end, winner) with an
// optimistic guard on updated_at. A concurrent mutation surfaces as a
// Conflict error.
func (r *AuctionRepository) Update(ctx context.Context, a *auction.Auction, priorUpdatedAt time.Time) error {
	query := `
		UPDATE auctions
		SET status = $2, start_at = $3, end_at = $4, winner_bid_id = $5,
		    current_price = $6, updated_at = $7
		WHERE id = $1 AND updated_at = $8`

	tag, err := r.db.Pgx().Exec(ctx, query,
		a.ID, a.Status.String(), a.StartAt, a.EndAt, a.WinnerBidID,
		a.CurrentPrice, time.Now().UTC(), priorUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewConflictError("auction was modified concurrently")
	}
	return nil
}

// ListActive returns active auctions ending soonest first.
func (r *AuctionRepository) ListActive(ctx context.Context, page, pageSize int) ([]*auction.Auction, int, error) {
	return r.list(ctx, `status = 'active' AND end_at > NOW()`, nil, `end_at ASC`, page, pageSize)
}

// ListActiveByCategory returns active auctions in a category.
func (r *AuctionRepository) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error) {
	return r.list(ctx, `status = 'active' AND end_at > NOW() AND category_id = $1`,
		[]interface{}{categoryID}, `end_at ASC`, page, pageSize)
}

// ListBySeller returns all of a seller's auctions, newest first.
func (r *AuctionRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]*auction.Auction, int, error) {
	return r.list(ctx, `seller_id = $1`, []interface{}{sellerID}, `created_at DESC`, page, pageSize)
}

// FindDue returns active auctions whose end time has passed, for the
// expiry sweeper.
func (r *AuctionRepository) FindDue(ctx context.Context, limit int) ([]*auction.Auction, error) {
	rows, err := r.db.Pgx().Query(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		WHERE status = 'active' AND end_at <= NOW()
		ORDER BY end_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// CountActive returns the number of currently active auctions.
func (r *AuctionRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pgx().QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE status = 'active' AND end_at > NOW()`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active auctions: %w", err)
	}
	return count, nil
}

func (r *AuctionRepository) list(ctx context.Context, where string, args []interface{}, order string, page, pageSize int) ([]*auction.Auction, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM auctions WHERE ` + where
	if err := r.db.Pgx().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	offset := (page - 1) * pageSize
	listArgs := append(append([]interface{}{}, args...), pageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		auctionColumns, where, order, len(args)+1, len(args)+2)

	rows, err := r.db.Pgx().Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, 0, err
	}
	return auctions, total, nil
}

func collectAuctions(rows pgx.Rows) ([]*auction.Auction, error) {
	var out []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var a auction.Auction
	var statusStr string
	var imageURL, reserveStr *string
	var startStr, currentStr, incrementStr string

	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &imageURL, &a.SellerID, &a.CategoryID,
		&startStr, &currentStr, &reserveStr, &incrementStr,
		&a.StartAt, &a.EndAt, &statusStr, &a.WinnerBidID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imageURL != nil {
		a.ImageURL = *imageURL
	}
	a.Status = auction.ParseStatus(statusStr)

	if a.StartPrice, err = values.NewMoneyFromString(startStr); err != nil {
		return nil, err
	}
	if a.CurrentPrice, err = values.NewMoneyFromString(currentStr); err != nil {
		return nil, err
	}
	if a.MinIncrement, err = values.NewMoneyFromString(incrementStr); err != nil {
		return nil, err
	}
	if reserveStr != nil {
		reserve, err := values.NewMoneyFromString(*reserveStr)
		if err != nil {
			return nil, err
		}
		a.ReservePrice = &reserve
	}

	return &a, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
